package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hotel-messaging/internal/models"
)

func TestNameFromGreeting(t *testing.T) {
	cases := map[string]string{
		"Hi Robert, your room is ready":  "Robert",
		"hello 'Emma Stone'! welcome":    "Emma Stone",
		"Dear John Smith, thanks":        "John Smith",
		"Maria, please come to the desk": "Maria",
		"#204 ready. Dear: Luis":         "Luis",
		"123 is your room":               "",
		"":                               "",
	}
	for body, want := range cases {
		assert.Equal(t, want, NameFromGreeting(body), body)
	}
}

func TestNameFromSlots(t *testing.T) {
	vars := models.TemplateVariables{
		{Key: "room", Value: "204"},
		{Key: "hotel", Value: "Mercure"},
		{Key: "GuestFirst", Value: " Ana "},
	}
	assert.Equal(t, "Ana", NameFromSlots(vars))

	noHint := models.TemplateVariables{{Key: "1", Value: "204"}, {Key: "2", Value: "Luis Gomez"}}
	assert.Equal(t, "Luis Gomez", NameFromSlots(noHint))

	assert.Equal(t, "", NameFromSlots(models.TemplateVariables{{Key: "code", Value: "X1"}}))
}

func TestInferName_SlotBeforeGreeting(t *testing.T) {
	m := &models.Message{
		Template: &models.Template{Variables: models.TemplateVariables{{Key: "name", Value: "Slot"}}},
		Body:     models.Body{Text: &models.TextPart{Text: "Hi Greeting,"}},
	}
	name, src := InferName(m)
	assert.Equal(t, "Slot", name)
	assert.Equal(t, SourceSlot, src)

	m.Template = nil
	name, src = InferName(m)
	assert.Equal(t, "Greeting", name)
	assert.Equal(t, SourceGreeting, src)
}
