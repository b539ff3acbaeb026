package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID = "argon2id"

	minMemoryKB    uint32 = 8 * 1024
	minTime        uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16

	// Cotas para parámetros leídos de un verificador almacenado.
	maxMemoryKB    uint32 = 1 << 20
	maxTime        uint32 = 10
	maxParallelism uint8  = 16
	maxSaltLength         = 64
	maxKeyLength          = 64
)

// Params define el costo de Argon2id usado para nuevos hashes.
type Params struct {
	MemoryKB    uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams sigue la recomendación de OWASP para argon2id (19 MiB, t=2, p=1).
func DefaultParams() Params {
	return Params{
		MemoryKB:    19 * 1024,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher convierte contraseñas en verificadores PHC y los comprueba.
// Es seguro para uso concurrente.
type Hasher struct {
	params Params
}

func NewHasher(params Params) (*Hasher, error) {
	if params.MemoryKB < minMemoryKB || params.MemoryKB > maxMemoryKB {
		return nil, fmt.Errorf("argon2 memory must be between %d and %d KB", minMemoryKB, maxMemoryKB)
	}
	if params.Time < minTime || params.Time > maxTime {
		return nil, fmt.Errorf("argon2 time must be between %d and %d", minTime, maxTime)
	}
	if params.Parallelism < minParallelism || params.Parallelism > maxParallelism {
		return nil, fmt.Errorf("argon2 parallelism must be between %d and %d", minParallelism, maxParallelism)
	}
	if params.SaltLength < minSaltLength || params.SaltLength > maxSaltLength {
		return nil, fmt.Errorf("argon2 salt length must be between %d and %d", minSaltLength, maxSaltLength)
	}
	if params.KeyLength < minKeyLength || params.KeyLength > maxKeyLength {
		return nil, fmt.Errorf("argon2 key length must be between %d and %d", minKeyLength, maxKeyLength)
	}
	return &Hasher{params: params}, nil
}

// Hash devuelve un verificador con sal aleatoria en formato
// $argon2id$v=19$m=...,t=...,p=...$salt$hash.
func (h *Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(secret), salt, h.params.Time, h.params.MemoryKB, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.params.MemoryKB,
		h.params.Time,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify compara secret contra un verificador. Un verificador malformado
// devuelve false.
func (h *Hasher) Verify(secret, verifier string) bool {
	parsed, err := parsePHC(verifier)
	if err != nil {
		return false
	}
	key := argon2.IDKey([]byte(secret), parsed.salt, parsed.time, parsed.memory, parsed.parallelism, uint32(len(parsed.key)))
	return subtle.ConstantTimeCompare(key, parsed.key) == 1
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parsePHC(encoded string) (phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return phc{}, errors.New("invalid phc format")
	}
	if parts[1] != algorithmID {
		return phc{}, errors.New("unsupported algorithm")
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return phc{}, errors.New("unsupported argon2 version")
	}

	var out phc
	seen := 0
	for _, pair := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return phc{}, errors.New("invalid parameter entry")
		}
		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || uint32(n) < minMemoryKB || uint32(n) > maxMemoryKB {
				return phc{}, errors.New("invalid memory parameter")
			}
			out.memory = uint32(n)
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || uint32(n) < minTime || uint32(n) > maxTime {
				return phc{}, errors.New("invalid time parameter")
			}
			out.time = uint32(n)
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil || uint8(n) < minParallelism || uint8(n) > maxParallelism {
				return phc{}, errors.New("invalid parallelism parameter")
			}
			out.parallelism = uint8(n)
		default:
			return phc{}, errors.New("unsupported parameter")
		}
		seen++
	}
	if seen != 3 || out.memory == 0 || out.time == 0 || out.parallelism == 0 {
		return phc{}, errors.New("missing parameters")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || uint32(len(salt)) < minSaltLength || len(salt) > maxSaltLength {
		return phc{}, errors.New("invalid salt")
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || uint32(len(key)) < minKeyLength || len(key) > maxKeyLength {
		return phc{}, errors.New("invalid hash")
	}
	out.salt = salt
	out.key = key
	return out, nil
}
