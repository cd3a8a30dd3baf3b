// ABOUTME: Versioned image envelope codec (CBOR header, zstd payload, BLAKE3 checksum)
// ABOUTME: Serialize/Deserialize convert between a live engine and portable bytes

package image

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

const (
	// Magic identifies a shopdb image envelope.
	Magic = "shopdb.image"

	// Version is the envelope version written by Serialize.
	Version = 1
)

// ErrInvalidImage is returned when bytes cannot be decoded into an engine.
var ErrInvalidImage = errors.New("invalid image")

// sqliteHeader prefixes every raw SQLite database file.
var sqliteHeader = []byte("SQLite format 3\x00")

// checksumKey is the BLAKE3 key for image checksums, ASCII zero-padded to 32 bytes.
var checksumKey = [32]byte{
	's', 'h', 'o', 'p', 'd', 'b', '.', 'i', 'm', 'a', 'g', 'e', '.',
	'c', 'h', 'e', 'c', 'k', 's', 'u', 'm',
}

// Header describes an image without its payload.
type Header struct {
	Magic     string    `cbor:"magic"`
	Version   int       `cbor:"version"`
	Identity  string    `cbor:"identity"`
	CreatedAt time.Time `cbor:"created_at"`
	Size      int       `cbor:"size"`
	Checksum  []byte    `cbor:"checksum"`
}

type envelope struct {
	Header  Header `cbor:"header"`
	Payload []byte `cbor:"payload"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("image: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("image: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("image: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("image: zstd decoder initialization failed: " + err.Error())
	}
}

// Checksum returns the keyed BLAKE3 digest of a raw database image.
func Checksum(data []byte) []byte {
	hasher, err := blake3.NewKeyed(checksumKey[:])
	if err != nil {
		panic("image: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	return hasher.Sum(nil)
}

// Serialize encodes the engine into a versioned envelope.
func Serialize(ctx context.Context, db *sql.DB, identity string) ([]byte, error) {
	raw, err := rawSerialize(ctx, db)
	if err != nil {
		return nil, err
	}

	env := envelope{
		Header: Header{
			Magic:     Magic,
			Version:   Version,
			Identity:  identity,
			CreatedAt: time.Now().UTC(),
			Size:      len(raw),
			Checksum:  Checksum(raw),
		},
		Payload: zstdEncoder.EncodeAll(raw, nil),
	}

	out, err := encMode.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding image envelope: %w", err)
	}
	return out, nil
}

// Deserialize builds a new engine from bytes produced by Serialize or from a
// raw SQLite database file. Empty input yields a fresh engine.
func Deserialize(ctx context.Context, data []byte) (*sql.DB, error) {
	raw, err := decode(data)
	if err != nil {
		return nil, err
	}

	db, err := NewEngine(ctx)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return db, nil
	}

	if err := rawDeserialize(ctx, db, raw); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	// SQLite only reports a malformed file on first read.
	var n int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master`).Scan(&n); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return db, nil
}

// Inspect decodes the envelope header. Raw SQLite files report a header
// with an empty magic and version 0.
func Inspect(data []byte) (Header, error) {
	if bytes.HasPrefix(data, sqliteHeader) {
		return Header{Size: len(data), Checksum: Checksum(data)}, nil
	}
	env, err := decodeEnvelope(data)
	if err != nil {
		return Header{}, err
	}
	return env.Header, nil
}

// decode returns the raw database image carried by data.
func decode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if bytes.HasPrefix(data, sqliteHeader) {
		return data, nil
	}

	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	raw, err := zstdDecoder.DecodeAll(env.Payload, make([]byte, 0, env.Header.Size))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd decompress: %v", ErrInvalidImage, err)
	}
	if len(raw) != env.Header.Size {
		return nil, fmt.Errorf("%w: got %d bytes, expected %d", ErrInvalidImage, len(raw), env.Header.Size)
	}
	if !bytes.Equal(Checksum(raw), env.Header.Checksum) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidImage)
	}
	return raw, nil
}

func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("%w: decoding envelope: %v", ErrInvalidImage, err)
	}
	if env.Header.Magic != Magic {
		return env, fmt.Errorf("%w: bad magic %q", ErrInvalidImage, env.Header.Magic)
	}
	if env.Header.Version != Version {
		return env, fmt.Errorf("%w: unsupported version %d", ErrInvalidImage, env.Header.Version)
	}
	return env, nil
}
