// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package locale holds every user-facing string that ends up inside a
// conversation or a notification, in English and Russian.
package locale

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Key identifies a translatable string.
type Key string

const (
	Thinking       Key = "status.thinking"
	GeneratingImg  Key = "status.generating_image"
	StreamError    Key = "error.stream"
	EmptyResponse  Key = "error.empty_response"
	ImageFailed    Key = "error.image_failed"
	ImageCaption   Key = "image.caption"
	DefaultTitle   Key = "chat.default_title"
	SystemPrompt   Key = "chat.system_instruction"
	CodeSentTitle  Key = "verify.sent.title"
	CodeSentBody   Key = "verify.sent.body"
	DemoModeTitle  Key = "verify.demo.title"
	DemoModeBody   Key = "verify.demo.body"
	SendFailTitle  Key = "verify.fail.title"
	SendFailBody   Key = "verify.fail.body"
	WrongCode      Key = "verify.wrong_code"
	CodeExpired    Key = "verify.code_expired"
	EmailBody      Key = "verify.email_body"
	ResendIn       Key = "verify.resend_in"
	ConfirmDelete  Key = "confirm.delete_chat"
	ConfirmClear   Key = "confirm.clear_all"
)

// =============================================================================
// CATALOG
// =============================================================================

var entries = map[Key][2]string{ // {english, russian}
	Thinking:      {"Thinking...", "Думаю..."},
	GeneratingImg: {"Creating image...", "Создаю изображение..."},
	StreamError:   {"Error: check your API key or internet connection.", "Ошибка: проверьте API ключ или интернет-соединение."},
	EmptyResponse: {"The model returned an empty response.", "Модель вернула пустой ответ."},
	ImageFailed:   {"Could not create the image. Try changing the description.", "Не удалось создать изображение. Попробуйте изменить описание."},
	ImageCaption:  {"Image for prompt: \"%s\"", "Изображение по запросу: \"%s\""},
	DefaultTitle:  {"New chat", "Новый диалог"},
	SystemPrompt: {
		"You are Visionary, an advanced AI assistant. You are talking to the Developer. You help create content and images. If the user asks for an image, remind them to use the image generation command.",
		"Вы — продвинутый ИИ-ассистент Visionary. Вы общаетесь с Разработчиком. Вы помогаете создавать контент и изображения. Если пользователь просит создать изображение, напомните ему использовать команду генерации изображений.",
	},
	CodeSentTitle: {"Email sent!", "Письмо отправлено!"},
	CodeSentBody:  {"Check your Inbox or Spam folder.", "Проверьте папку \"Входящие\" или \"Спам\"."},
	DemoModeTitle: {"Demo mode", "Режим демонстрации"},
	DemoModeBody:  {"Code: %s (configure EmailJS for real email).", "Код: %s (настройте EmailJS для реальной почты)."},
	SendFailTitle: {"Sending failed", "Ошибка отправки"},
	SendFailBody:  {"Could not send email to the given address.", "Не удалось отправить письмо на указанный адрес."},
	WrongCode:     {"Wrong code. Please try again.", "Неверный код. Пожалуйста, попробуйте снова."},
	CodeExpired:   {"Too many attempts. Request a new code.", "Слишком много попыток. Запросите новый код."},
	EmailBody:     {"Your Visionary AI verification code: %s", "Ваш проверочный код для Visionary AI: %s"},
	ResendIn:      {"Resend available in %ds", "Переотправить через %dс"},
	ConfirmDelete: {"Delete this chat?", "Удалить этот чат?"},
	ConfirmClear:  {"Log out and delete all chats?", "Выйти и удалить все чаты?"},
}

var (
	supported = []language.Tag{language.English, language.Russian}
	matcher   = language.NewMatcher(supported)
	cat       = buildCatalog()
)

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, text := range entries {
		for i, tag := range supported {
			// Entries are static; SetString only fails on malformed tags.
			_ = b.SetString(tag, string(key), text[i])
		}
	}
	return b
}

// =============================================================================
// PRINTER
// =============================================================================

// Printer renders catalog strings in one language.
type Printer struct {
	tag language.Tag
	p   *message.Printer
}

// New returns a Printer for the best supported match of lang (a BCP 47 tag
// such as "ru" or "en-GB"). Unknown or empty input falls back to English.
func New(lang string) *Printer {
	tag := language.English
	if lang != "" {
		if parsed, err := language.Parse(lang); err == nil {
			_, idx, _ := matcher.Match(parsed)
			tag = supported[idx]
		}
	}
	return &Printer{tag: tag, p: message.NewPrinter(tag, message.Catalog(cat))}
}

// Language returns the selected language tag.
func (p *Printer) Language() language.Tag {
	return p.tag
}

// T returns the translation of key, formatted with args.
func (p *Printer) T(key Key, args ...any) string {
	return p.p.Sprintf(string(key), args...)
}

// Supported lists the available languages.
func Supported() []language.Tag {
	out := make([]language.Tag, len(supported))
	copy(out, supported)
	return out
}
