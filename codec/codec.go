// Package codec converts mirrored values to and from the string form kept by
// a storage area.
//
// A Codec must be pure: the same value always serializes to the same string
// and neither direction may have side effects. Failures are returned as
// errors; the mirror engine reports them and never lets them escape.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/BurntSushi/toml"
)

// Codec serializes values of type T for storage.
type Codec[T any] interface {
	// Serialize converts v to its stored representation.
	Serialize(v T) (string, error)

	// Deserialize parses a stored representation.
	Deserialize(raw string) (T, error)
}

// JSON is the default codec. Values are stored as their JSON encoding, so the
// string "John Doe" is stored as "\"John Doe\"".
type JSON[T any] struct{}

// Serialize implements Codec.
func (JSON[T]) Serialize(v T) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("json encode: %w", err)
	}
	return string(data), nil
}

// Deserialize implements Codec. An empty string is not valid JSON and fails.
func (JSON[T]) Deserialize(raw string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, fmt.Errorf("json decode: %w", err)
	}
	return v, nil
}

// TOML stores table-shaped values (structs and maps) as TOML documents.
// Scalars cannot be top-level TOML documents and fail to serialize.
type TOML[T any] struct{}

// Serialize implements Codec.
func (TOML[T]) Serialize(v T) (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		return "", fmt.Errorf("toml encode: %w", err)
	}
	return buf.String(), nil
}

// Deserialize implements Codec.
func (TOML[T]) Deserialize(raw string) (T, error) {
	var v T
	if _, err := toml.Decode(raw, &v); err != nil {
		return v, fmt.Errorf("toml decode: %w", err)
	}
	return v, nil
}

// Serializer converts a value to its stored form.
type Serializer[T any] func(v T) (string, error)

// Parser converts a stored form back to a value.
type Parser[T any] func(raw string) (T, error)

// Funcs adapts a serializer/parser pair to Codec. A nil half delegates to
// Base, which defaults to JSON.
type Funcs[T any] struct {
	Serializer Serializer[T]
	Parser     Parser[T]
	Base       Codec[T]
}

// Override returns a codec that uses ser and parse where they are non-nil
// and base otherwise.
func Override[T any](base Codec[T], ser Serializer[T], parse Parser[T]) Codec[T] {
	if ser == nil && parse == nil && base != nil {
		return base
	}
	return Funcs[T]{Serializer: ser, Parser: parse, Base: base}
}

func (f Funcs[T]) base() Codec[T] {
	if f.Base != nil {
		return f.Base
	}
	return JSON[T]{}
}

// Serialize implements Codec.
func (f Funcs[T]) Serialize(v T) (string, error) {
	if f.Serializer != nil {
		return f.Serializer(v)
	}
	return f.base().Serialize(v)
}

// Deserialize implements Codec.
func (f Funcs[T]) Deserialize(raw string) (T, error) {
	if f.Parser != nil {
		return f.Parser(raw)
	}
	return f.base().Deserialize(raw)
}

// String is an identity codec for values that are already strings. Every
// stored string, including the empty one, parses successfully.
type String struct{}

// Serialize implements Codec.
func (String) Serialize(v string) (string, error) {
	return v, nil
}

// Deserialize implements Codec.
func (String) Deserialize(raw string) (string, error) {
	return raw, nil
}
