package generation

import (
	"fmt"
	"strings"

	"github.com/NicoHurtado/cursia-sub002/model"
)

const systemPrompt = `Eres un diseñador instruccional experto. Respondes siempre en español y
únicamente con un objeto JSON válido, sin texto adicional.`

// maxSourceChars bounds how much of an uploaded document goes into the prompt.
const maxSourceChars = 20000

func metadataPrompt(course *model.Course, source string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Diseña un curso a partir de esta solicitud:\n%q\n\n", course.Prompt)
	if course.Level != "" {
		fmt.Fprintf(&b, "Nivel del estudiante: %s\n\n", course.Level)
	}
	if source != "" {
		if len(source) > maxSourceChars {
			source = source[:maxSourceChars]
		}
		fmt.Fprintf(&b, "Usa como base este material de referencia:\n<documento>\n%s\n</documento>\n\n", source)
	}
	b.WriteString(`Devuelve un JSON con esta forma:
{"title": "...", "description": "...", "level": "principiante|intermedio|avanzado",
 "modules": [{"title": "...", "description": "..."}]}
Incluye entre 4 y 8 módulos ordenados de lo básico a lo avanzado.`)
	return b.String()
}

func modulePrompt(course *model.Course, moduleNumber int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Curso: %s\n%s\n\nTemario:\n", course.Title, course.Description)
	for i, m := range course.Modules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, m.Title)
	}
	target := course.Modules[moduleNumber-1]
	fmt.Fprintf(&b, "\nEscribe el contenido completo del módulo %d: %s\n%s\n\n", moduleNumber, target.Title, target.Description)
	b.WriteString(`Devuelve un JSON con esta forma:
{"chunks": [{"title": "...", "content": "markdown"}],
 "quiz": {"title": "...", "questions": [{"question": "...", "options": ["a","b","c","d"],
          "correctAnswer": 0, "explanation": "..."}]},
 "videoQuery": "búsqueda corta para encontrar un video del tema"}
Incluye entre 3 y 6 chunks y 5 preguntas. correctAnswer es el índice de la opción correcta.`)
	return b.String()
}
