package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"

	logx "autorun/pkg/logx"
)

// Manager reads the configuration document from disk.
//
// The loop calls Load at the start of every iteration; nothing is cached for
// control decisions. The committed document only feeds the watcher's change
// summaries.
type Manager struct {
	path string

	mu  sync.RWMutex
	doc *Document
	// seenHash is the last content the watcher reported on.
	seenHash uint64

	log logx.Logger
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

// Parse reads and validates the document without committing it.
// Every failure is a *ConfigError.
func (m *Manager) Parse() (*Document, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, &ConfigError{Path: m.path, Op: OpRead, Err: err}
	}
	doc, err := decodeDocument(m.path, b)
	if err != nil {
		return nil, &ConfigError{Path: m.path, Op: OpDecode, Err: err}
	}
	if err := doc.Validate(); err != nil {
		return nil, &ConfigError{Path: m.path, Op: OpValidate, Err: err}
	}
	return doc, nil
}

func decodeDocument(path string, b []byte) (*Document, error) {
	jb, err := documentJSON(path, b)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(jb)
	if len(trimmed) == 0 {
		return nil, errors.New("empty document")
	}
	if trimmed[0] != '{' {
		return nil, errors.New("document must be a JSON object")
	}

	var doc Document
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, errors.New("trailing data after document")
		}
		return nil, err
	}
	return &doc, nil
}

// commit records doc as the last loaded document.
func (m *Manager) commit(doc *Document) {
	h := hashDocument(doc)
	m.mu.Lock()
	m.doc = doc
	m.seenHash = h
	m.mu.Unlock()
}

// Load parses the document and commits it.
func (m *Manager) Load() (*Document, error) {
	doc, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.commit(doc)
	return doc, nil
}
