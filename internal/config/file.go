package config

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

var comments = map[string]string{
	"log":                     "Logging",
	"log.level":               "debug, info, warn or error",
	"log.file":                "player log file; empty writes to the user cache directory",
	"server":                  "OTP HTTP service",
	"server.environment":      "\"production\" stops undelivered codes being echoed to the client",
	"otp.store":               "memory or redis",
	"otp.redis_url":           "redis://host:6379/0, used when store is redis",
	"otp.ttl":                 "how long a verification code stays valid",
	"audit.path":              "SQLite file for the OTP audit trail; empty disables it",
	"audit.retention":         "audit events older than this are pruned",
	"speech":                  "Lesson playback",
	"speech.engine":           "auto, espeak or mock",
	"speech.language":         "en or sw; picks a voice when speech.voice is empty",
	"speech.rate":             "0.1 to 3.0",
	"speech.volume":           "0.0 to 1.0",
	"speech.max_chunk_length": "longest utterance handed to the synthesizer, in characters",
}

// Marshal renders c as commented YAML.
func Marshal(c Config) ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode configuration: %w", err)
	}
	annotate(&doc, "")

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("encode configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DefaultFile is written when no configuration file exists yet.
func DefaultFile() ([]byte, error) {
	return Marshal(Default())
}

func annotate(n *yaml.Node, prefix string) {
	if n.Kind == yaml.DocumentNode {
		for _, c := range n.Content {
			annotate(c, prefix)
		}
		return
	}
	if n.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		path := key.Value
		if prefix != "" {
			path = prefix + "." + key.Value
		}
		if c, ok := comments[path]; ok {
			if val.Kind == yaml.MappingNode {
				key.HeadComment = "# " + c
			} else {
				key.LineComment = "# " + c
			}
		}
		annotate(val, path)
	}
}
