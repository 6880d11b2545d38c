// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package channel provides message channel implementations for embed
// sessions: an in-process pipe and a WebSocket transport.
package channel

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
)

// Codec names.
const (
	CodecJSON = "json"
	CodecCBOR = "cbor"
)

// Codec frames messages for a byte transport.
type Codec interface {
	Name() string
	// Binary reports whether frames must travel as binary rather than text.
	Binary() bool
	Marshal(msg model.Message) ([]byte, error)
	Unmarshal(data []byte) (model.Message, error)
}

// CodecByName returns the codec registered under name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case CodecJSON, "":
		return JSON(), nil
	case CodecCBOR:
		return CBOR(), nil
	}
	return nil, fmt.Errorf("unknown codec %q (supported: %s, %s)", name, CodecJSON, CodecCBOR)
}

type jsonCodec struct{}

// JSON returns the text codec used by browser content.
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) Name() string { return CodecJSON }
func (jsonCodec) Binary() bool { return false }

func (jsonCodec) Marshal(msg model.Message) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte) (model.Message, error) {
	var msg model.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return model.Message{}, fmt.Errorf("%w: %w", model.ErrMalformedMessage, err)
	}
	return msg, msg.Validate()
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("channel: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		// Payload values decoded into any must be JSON-compatible maps.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("channel: CBOR decoder initialization failed: " + err.Error())
	}
}

type cborCodec struct{}

// CBOR returns the compact binary codec with deterministic encoding.
func CBOR() Codec { return cborCodec{} }

func (cborCodec) Name() string { return CodecCBOR }
func (cborCodec) Binary() bool { return true }

func (cborCodec) Marshal(msg model.Message) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return cborEnc.Marshal(msg)
}

func (cborCodec) Unmarshal(data []byte) (model.Message, error) {
	var msg model.Message
	if err := cborDec.Unmarshal(data, &msg); err != nil {
		return model.Message{}, fmt.Errorf("%w: %w", model.ErrMalformedMessage, err)
	}
	return msg, msg.Validate()
}
