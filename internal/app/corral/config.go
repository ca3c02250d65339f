// Copyright 2022-2024 Boris HUISGEN. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package corral

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// config implements the configuration.
type config struct {
	Manager    *configManager
	Admin      *configAdmin
	Metrics    *configMetrics
	Listeners  map[string]*configListener
	parser     configParser
	osReadFile func(name string) ([]byte, error)
}

// configManager implements the configuration of the listener manager.
type configManager struct {
	MaxRestarts       *int `mapstructure:"maxRestarts"`
	RestartPeriod     *int `mapstructure:"restartPeriod"`
	RestartBackoff    *int `mapstructure:"restartBackoff"`
	MaxRestartBackoff *int `mapstructure:"maxRestartBackoff"`
}

// configAdmin implements the configuration of the admin service.
type configAdmin struct {
	ListenAddr *string `mapstructure:"listenAddr"`
	ListenPort *int    `mapstructure:"listenPort"`
}

// configMetrics implements the configuration of the metrics endpoint.
type configMetrics struct {
	ListenAddr *string `mapstructure:"listenAddr"`
	ListenPort *int    `mapstructure:"listenPort"`
	Path       *string `mapstructure:"path"`
}

// configListener implements the configuration of a listener.
type configListener struct {
	Acceptors *int                   `mapstructure:"acceptors"`
	Transport map[string]interface{} `mapstructure:"transport"`
	Protocol  map[string]interface{} `mapstructure:"protocol"`
}

const (
	configDefaultFile string = "corral.yaml"
)

// configOsReadFile redirects to os.ReadFile.
func configOsReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// newConfig creates a new config.
func newConfig(parser configParser) *config {
	return &config{
		parser:     parser,
		osReadFile: configOsReadFile,
	}
}

// decode decodes the parsed document into the configuration sections.
func (c *config) decode(data map[string]interface{}) error {
	if err := mapstructure.Decode(data, c); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	return nil
}

// configParser
type configParser interface {
	parse([]byte, *config) error
}

// configParserYAML implements the YAML configuration parser.
type configParserYAML struct {
	yamlUnmarshal func(in []byte, out interface{}) error
}

// newConfigParserYAML creates a new YAML config parser.
func newConfigParserYAML() *configParserYAML {
	return &configParserYAML{
		yamlUnmarshal: yaml.Unmarshal,
	}
}

// parse parses the YAML data.
func (p *configParserYAML) parse(data []byte, c *config) error {
	var y map[string]interface{}
	if err := p.yamlUnmarshal(data, &y); err != nil {
		return err
	}

	return c.decode(y)
}

var _ configParser = (*configParserYAML)(nil)

// configParserTOML implements the TOML configuration parser.
type configParserTOML struct {
	tomlUnmarshal func(in []byte, out interface{}) error
}

// newConfigParserTOML creates a new TOML config parser.
func newConfigParserTOML() *configParserTOML {
	return &configParserTOML{
		tomlUnmarshal: toml.Unmarshal,
	}
}

// parse parses the TOML data.
func (p *configParserTOML) parse(data []byte, c *config) error {
	var t map[string]interface{}
	if err := p.tomlUnmarshal(data, &t); err != nil {
		return err
	}

	return c.decode(t)
}

var _ configParser = (*configParserTOML)(nil)

// configParserJSON implements the JSON configuration parser.
type configParserJSON struct {
	jsonUnmarshal func(in []byte, out interface{}) error
}

// newConfigParserJSON creates a new JSON config parser.
func newConfigParserJSON() *configParserJSON {
	return &configParserJSON{
		jsonUnmarshal: json.Unmarshal,
	}
}

// parse parses the JSON data.
func (p *configParserJSON) parse(data []byte, c *config) error {
	var j map[string]interface{}
	if err := p.jsonUnmarshal(data, &j); err != nil {
		return err
	}

	return c.decode(j)
}

var _ configParser = (*configParserJSON)(nil)

// newConfigParser returns the parser of the file according to its extension.
func newConfigParser(name string) (configParser, error) {
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		return newConfigParserYAML(), nil
	case ".toml":
		return newConfigParserTOML(), nil
	case ".json":
		return newConfigParserJSON(), nil
	}

	return nil, errors.New("invalid file extension")
}

// LoadConfig loads the configuration.
func LoadConfig() (*config, error) {
	name := configDefaultFile
	if CONFIG_FILE != "" {
		name = CONFIG_FILE
	}

	parser, err := newConfigParser(name)
	if err != nil {
		return nil, err
	}
	c := newConfig(parser)
	data, err := c.osReadFile(name)
	if err != nil {
		return nil, err
	}

	if err := c.parser.parse(data, c); err != nil {
		return nil, err
	}

	return c, nil
}

// LoadOptions loads a map of options from a YAML, TOML or JSON file.
func LoadOptions(name string) (map[string]interface{}, error) {
	data, err := configOsReadFile(name)
	if err != nil {
		return nil, err
	}

	var options map[string]interface{}
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &options)
	case ".toml":
		err = toml.Unmarshal(data, &options)
	case ".json":
		err = json.Unmarshal(data, &options)
	default:
		return nil, errors.New("invalid file extension")
	}
	if err != nil {
		return nil, fmt.Errorf("parse options: %w", err)
	}
	if options == nil {
		options = map[string]interface{}{}
	}

	return options, nil
}

//go:embed templates/init/*
var configTemplatesInit embed.FS

// GenerateConfig creates a new configuration file from a template.
func GenerateConfig(syntax string, template string) error {
	switch syntax {
	case "yaml", "toml", "json":
	default:
		return fmt.Errorf("invalid syntax '%s'", syntax)
	}

	name := "corral." + syntax
	if CONFIG_FILE != "" {
		name = CONFIG_FILE
	}

	_, err := os.Stat(name)
	if err == nil {
		return fmt.Errorf("configuration file '%s' already exists", name)
	}

	data, err := fs.ReadFile(configTemplatesInit, path.Join("templates", "init", template, "corral."+syntax))
	if err != nil {
		return fmt.Errorf("invalid template '%s'", template)
	}
	if err := os.WriteFile(name, data, 0644); err != nil {
		return err
	}

	return nil
}
