// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package locale

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestNew_Matching(t *testing.T) {
	tests := []struct {
		in   string
		want language.Tag
	}{
		{"", language.English},
		{"en", language.English},
		{"ru", language.Russian},
		{"ru-RU", language.Russian},
		{"de", language.English},
		{"not a tag!", language.English},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			require.Equal(t, tc.want, New(tc.in).Language())
		})
	}
}

func TestPrinter_Translations(t *testing.T) {
	ru := New("ru")
	require.Equal(t, "Думаю...", ru.T(Thinking))
	require.Equal(t, "Новый диалог", ru.T(DefaultTitle))
	require.Equal(t, `Изображение по запросу: "кот"`, ru.T(ImageCaption, "кот"))
	require.Equal(t, "Ваш проверочный код для Visionary AI: 123456", ru.T(EmailBody, "123456"))

	en := New("en")
	require.Equal(t, "New chat", en.T(DefaultTitle))
	require.Equal(t, "Code: 654321 (configure EmailJS for real email).", en.T(DemoModeBody, "654321"))
}

func TestCatalog_Complete(t *testing.T) {
	for key, text := range entries {
		if text[0] == "" || text[1] == "" {
			t.Errorf("entry %q is missing a translation", key)
		}
	}
}
