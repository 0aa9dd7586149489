package db

import (
	"database/sql"
	"encoding/binary"
	"math"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Pagination bounds list queries.
type Pagination struct {
	Limit  int
	Offset int
}

// DefaultListLimit applies when Pagination.Limit is zero or negative.
const DefaultListLimit = 50

// MaxListLimit caps Pagination.Limit.
const MaxListLimit = 500

func (p Pagination) normalized() Pagination {
	if p.Limit <= 0 {
		p.Limit = DefaultListLimit
	}
	if p.Limit > MaxListLimit {
		p.Limit = MaxListLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// encodeEmbedding converts a float32 slice to a little-endian BLOB.
func encodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// embeddingValue returns the SQL argument for vec: a BLOB, or NULL when empty.
func embeddingValue(vec []float32) any {
	if len(vec) == 0 {
		return nil
	}
	return encodeEmbedding(vec)
}

// decodeEmbedding converts a little-endian BLOB back to a float32 slice.
// Trailing bytes that do not form a whole float are ignored.
func decodeEmbedding(buf []byte) []float32 {
	if len(buf) < 4 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// checkAffected maps a zero-row UPDATE/DELETE to sql.ErrNoRows.
func checkAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
