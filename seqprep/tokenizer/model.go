package tokenizer

import (
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// PieceType mirrors the SentencePiece model piece-type enum.
type PieceType int32

const (
	PieceNormal      PieceType = 1
	PieceUnknown     PieceType = 2
	PieceControl     PieceType = 3
	PieceUserDefined PieceType = 4
	PieceUnused      PieceType = 5
	PieceByte        PieceType = 6
)

// Piece is one vocabulary entry of a unigram model: its surface string, its
// unigram log probability, and its role.
type Piece struct {
	Piece string
	Score float32
	Type  PieceType
}

// Model holds the vocabulary of a serialized SentencePiece model. Piece ids
// are indices into Pieces, matching the serialization order.
type Model struct {
	Pieces []Piece
}

// Wire field numbers of the SentencePiece model proto that the unigram
// backend needs. Everything else (trainer and normalizer specs) is skipped.
const (
	fieldModelPieces = 1
	fieldPieceString = 1
	fieldPieceScore  = 2
	fieldPieceType   = 3
)

// LoadModel reads and parses a serialized SentencePiece model file.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer model: %w", err)
	}
	m, err := ParseModel(data)
	if err != nil {
		return nil, fmt.Errorf("parse tokenizer model %s: %w", path, err)
	}
	return m, nil
}

// ParseModel decodes the wire form of a SentencePiece model. Only the
// repeated pieces field is materialized; unknown fields are skipped so models
// produced by any trainer version load cleanly.
func ParseModel(data []byte) (*Model, error) {
	m := &Model{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		if num == fieldModelPieces && typ == protowire.BytesType {
			raw, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
			p, err := parsePiece(raw)
			if err != nil {
				return nil, err
			}
			m.Pieces = append(m.Pieces, p)
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
	}
	if len(m.Pieces) == 0 {
		return nil, fmt.Errorf("model defines no vocabulary pieces")
	}
	return m, nil
}

func parsePiece(data []byte) (Piece, error) {
	p := Piece{Type: PieceNormal}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return p, protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == fieldPieceString && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			data = data[n:]
			p.Piece = string(raw)
		case num == fieldPieceScore && typ == protowire.Fixed32Type:
			bits, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			data = data[n:]
			p.Score = math.Float32frombits(bits)
		case num == fieldPieceType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			data = data[n:]
			p.Type = PieceType(v)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return p, nil
}
