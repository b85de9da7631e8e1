package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		"plain":   `{"title":"Go"}`,
		"fenced":  "```json\n{\"title\":\"Go\"}\n```",
		"prose":   `Claro, aquí está: {"title":"Go"} ¡Éxito!`,
		"nested":  `texto {"title":"Go","modules":[{"title":"a}"}]} fin`,
		"unicode": `{"title":"Introducción a Go"}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			out, err := ExtractJSON(in)
			require.NoError(t, err)
			assert.True(t, json.Valid([]byte(out)))
		})
	}

	_, err := ExtractJSON("sin json")
	assert.ErrorIs(t, err, ErrNoJSONFound)

	var meta CourseMetadata
	require.NoError(t, ExtractJSONTo(cases["unicode"], &meta))
	assert.Equal(t, "Introducción a Go", meta.Title)
}

func TestModuleContentValidate(t *testing.T) {
	ok := &ModuleContent{
		Chunks: []ChunkContent{{Title: "a", Content: "b"}},
		Quiz: &QuizContent{Questions: []QuestionContent{
			{Question: "q", Options: []string{"x", "y"}, CorrectAnswer: 1},
		}},
	}
	assert.NoError(t, ok.Validate())

	ok.Quiz.Questions[0].CorrectAnswer = 2
	assert.ErrorIs(t, ok.Validate(), ErrGeneration)

	assert.ErrorIs(t, (&ModuleContent{}).Validate(), ErrGeneration)
}

func TestRateLimiterTryAcquire(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{MaxTokens: 2, RefillRate: 0.001})
	assert.True(t, rl.TryAcquire())
	assert.True(t, rl.TryAcquire())
	assert.False(t, rl.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rl.Wait(ctx), context.DeadlineExceeded)
}

func newTestGenerator(t *testing.T, handler http.HandlerFunc) *AnthropicGenerator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAnthropicGenerator(AnthropicConfig{
		APIKey:  "sk-test",
		BaseURL: srv.URL,
		Model:   "claude-test",
	}, NewRateLimiter(RateLimiterConfig{MaxTokens: 10, RefillRate: 10}), logger.Nop())
}

func reply(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"content":     []map[string]string{{"type": "text", "text": text}},
		"stop_reason": "end_turn",
	})
}

func TestGenerateMetadataSendsHeadersAndParsesReply(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var body messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-test", body.Model)
		require.Len(t, body.Messages, 1)
		assert.Contains(t, body.Messages[0].Content, "Aprender Go")

		reply(w, "```json\n{\"title\":\"Go desde cero\",\"description\":\"d\",\"modules\":[{\"title\":\"Intro\"},{\"title\":\"Tipos\"}]}\n```")
	})

	meta, err := g.GenerateMetadata(context.Background(), &model.Course{Prompt: "Aprender Go"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Go desde cero", meta.Title)
	assert.Len(t, meta.Modules, 2)
}

func TestGenerateModuleRejectsBadOutput(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		reply(w, `{"chunks":[]}`)
	})

	course := &model.Course{Title: "Go", Modules: []model.Module{{Title: "Intro"}}}
	_, err := g.GenerateModule(context.Background(), course, 1)
	assert.ErrorIs(t, err, ErrGeneration)

	_, err = g.GenerateModule(context.Background(), course, 2)
	assert.ErrorIs(t, err, ErrGeneration)
}

func TestGenerateSurfacesAPIErrors(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad model"}}`))
	})

	_, err := g.GenerateMetadata(context.Background(), &model.Course{Prompt: "x"}, "")
	require.ErrorIs(t, err, ErrGeneration)
	assert.Contains(t, err.Error(), "bad model")
}
