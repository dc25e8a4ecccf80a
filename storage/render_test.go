package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender_Default(t *testing.T) {
	s := DefaultSettings(100, "")
	assert.Equal(t, "Hello Ana!\nWelcome to Book Club!\n\nEnjoy your stay!", Render(s, "Ana", "Book Club"))
}

func TestRender_OnlyName(t *testing.T) {
	s := &ChatSettings{WelcomeText: "Hi {name}"}
	assert.Equal(t, "Hi Ana", Render(s, "Ana", "Book Club"))
}

func TestRender_UnknownPlaceholdersPassThrough(t *testing.T) {
	s := &ChatSettings{WelcomeText: "{name} joined {title} {username} {}"}
	assert.Equal(t, "Ana joined Book Club {username} {}", Render(s, "Ana", "Book Club"))
}

func TestRender_RepeatedPlaceholders(t *testing.T) {
	s := &ChatSettings{WelcomeText: "{name}, {name}!"}
	assert.Equal(t, "Ana, Ana!", Render(s, "Ana", ""))
}

func TestRender_ValuesAreNotReexpanded(t *testing.T) {
	s := &ChatSettings{WelcomeText: "Hello {name} in {title}"}
	assert.Equal(t, "Hello {title} in X", Render(s, "{title}", "X"))
}

func TestRender_Nil(t *testing.T) {
	assert.Equal(t, "", Render(nil, "Ana", "Book Club"))
}

func TestButtonRows_ValueScan(t *testing.T) {
	rows := ButtonRows{{{Label: "A", URL: "https://a.example"}}}

	v, err := rows.Value()
	assert.NoError(t, err)

	var got ButtonRows
	assert.NoError(t, got.Scan(v))
	assert.Equal(t, rows, got)

	assert.NoError(t, got.Scan(nil))
	assert.Equal(t, ButtonRows{}, got)

	assert.Error(t, got.Scan(42))
}

func TestButtonRows_NilValue(t *testing.T) {
	v, err := ButtonRows(nil).Value()
	assert.NoError(t, err)
	assert.Equal(t, "[]", v)
}

func TestButtonRows_Count(t *testing.T) {
	rows := ButtonRows{{{Label: "A"}, {Label: "B"}}, {{Label: "C"}}}
	assert.Equal(t, 3, rows.Count())
}
