// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

// package i18n provides internationalization support for querioctl. It uses
// the go-i18n library to load and manage translation files, allowing the
// user interface to be displayed in multiple languages.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// localeFS embeds the YAML translation files from the 'locales' directory
// into the application binary.
//
//go:embed locales/*.yaml
var localeFS embed.FS

// bundle stores all the loaded translation messages from the locale files.
var bundle *i18n.Bundle

// localizer is used to translate messages into a specific language.
var localizer *i18n.Localizer

// lang is the currently active language tag.
var lang = "en"

// Init initializes the i18n bundle and sets up the localizer for a specific
// language. It parses all embedded YAML files from the 'locales' directory.
func Init(language_ string) {
	bundle = i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	files, _ := fs.ReadDir(localeFS, "locales")
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, _ := localeFS.ReadFile("locales/" + f.Name())
		bundle.ParseMessageFileBytes(data, f.Name())
	}

	lang = language_
	localizer = i18n.NewLocalizer(bundle, language_)
}

// T translates a message by its ID. Messages may contain fmt verbs; any
// trailing arguments are applied with fmt.Sprintf after localization.
// If the i18n system has not been initialized, it defaults to English.
// If a translation for the given ID is not found, the ID itself is returned.
func T(messageID string, args ...any) string {
	if localizer == nil {
		Init("en")
	}
	msg, err := localizer.Localize(&i18n.LocalizeConfig{MessageID: messageID})
	if err != nil {
		// Unknown message ID: fall back to the ID so the UI stays usable.
		return messageID
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}

// GetLang returns the currently active language tag.
func GetLang() string {
	return lang
}

// SetLang changes the active language of the localizer.
func SetLang(language_ string) {
	Init(language_)
}
