// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

// Package config loads TOML deployment configuration for the probec serve
// command: which entry source to compile, which function (if any) restores
// persisted state at boot, and where to listen.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"unicode"

	"github.com/naoina/toml"
)

// tomlSettings keeps TOML keys identical to the Go struct field names,
// rather than naoina/toml's default lowercasing, and rejects unknown keys
// with a message pointing at the offending field.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		id := fmt.Sprintf("%s.%s", rt.String(), field)
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// Serve describes a probec serve deployment.
type Serve struct {
	Entry    string // path to the .xl entry point
	BootFunc string `toml:",omitempty"` // function run once under the boot watchdog
	Addr     string `toml:",omitempty"` // listen address, defaults to ":8080"
}

// Load reads and decodes a TOML config file for the serve command.
func Load(file string) (*Serve, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := &Serve{Addr: ":8080"}
	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
