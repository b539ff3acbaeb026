package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"user-auth/internal/domain"
)

// Un pendiente vencido se conserva este tiempo para poder responder "expired"
// en lugar de "not found"; después Redis lo elimina solo.
const pendingRetention = 24 * time.Hour

const redisInsertPendingScript = `
local now = tonumber(ARGV[1])
if redis.call("EXISTS", KEYS[1]) == 1 then return "email" end
if redis.call("EXISTS", KEYS[2]) == 1 then return "username" end

local function purge_if_expired(pkey)
  local exp = redis.call("HGET", pkey, "otp_expires_at")
  if not exp then return true end
  if tonumber(exp) < now then
    local uname = redis.call("HGET", pkey, "username")
    redis.call("DEL", pkey)
    if uname then redis.call("DEL", ARGV[10] .. uname) end
    return true
  end
  return false
end

if not purge_if_expired(KEYS[3]) then return "email" end
local owner = redis.call("GET", KEYS[4])
if owner then
  if not purge_if_expired(ARGV[9] .. owner) then return "username" end
  redis.call("DEL", KEYS[4])
end

redis.call("HSET", KEYS[3],
  "email", ARGV[2],
  "username", ARGV[3],
  "password_hash", ARGV[4],
  "otp_code_hash", ARGV[5],
  "otp_expires_at", ARGV[6],
  "created_at", ARGV[7])
redis.call("PEXPIREAT", KEYS[3], ARGV[8])
redis.call("SET", KEYS[4], ARGV[2])
redis.call("PEXPIREAT", KEYS[4], ARGV[8])
return "ok"
`

// KEYS: pendiente, índice email, índice username, hash de la cuenta, índice
// username del pendiente. ARGV: id, username, hash del OTP verificado, now (ms).
const redisPromoteScript = `
local p = redis.call("HMGET", KEYS[1], "email", "username", "password_hash", "otp_code_hash", "otp_expires_at")
if not p[1] then return false end
if p[2] ~= ARGV[2] or p[4] ~= ARGV[3] then return false end
if not p[5] or tonumber(p[5]) < tonumber(ARGV[4]) then return false end
if redis.call("EXISTS", KEYS[2]) == 1 or redis.call("EXISTS", KEYS[3]) == 1 or redis.call("EXISTS", KEYS[4]) == 1 then
  return redis.error_reply("conflict")
end
redis.call("HSET", KEYS[4],
  "id", ARGV[1],
  "username", p[2],
  "email", p[1],
  "password_hash", p[3],
  "created_at", ARGV[4])
redis.call("SET", KEYS[2], ARGV[1])
redis.call("SET", KEYS[3], ARGV[1])
redis.call("DEL", KEYS[1])
if redis.call("GET", KEYS[5]) == p[1] then
  redis.call("DEL", KEYS[5])
end
return {p[1], p[2], p[3]}
`

const redisDeletePendingScript = `
local uname = redis.call("HGET", KEYS[1], "username")
redis.call("DEL", KEYS[1])
if uname and redis.call("GET", ARGV[1] .. uname) == ARGV[2] then
  redis.call("DEL", ARGV[1] .. uname)
end
return 1
`

const redisUpdateBioScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then return 0 end
if ARGV[1] == "set" then
  redis.call("HSET", KEYS[1], "bio", ARGV[2])
else
  redis.call("HDEL", KEYS[1], "bio")
end
return 1
`

var (
	insertPendingScript = redis.NewScript(redisInsertPendingScript)
	promoteScript       = redis.NewScript(redisPromoteScript)
	deletePendingScript = redis.NewScript(redisDeletePendingScript)
	updateBioScript     = redis.NewScript(redisUpdateBioScript)
)

// RedisAccountRepository guarda cuentas y pendientes como hashes de Redis.
// Las operaciones con varias claves corren como scripts Lua atómicos.
type RedisAccountRepository struct {
	client    redis.Cmdable
	prefix    string
	opTimeout time.Duration
}

func NewRedisAccountRepository(client redis.Cmdable, prefix string, opTimeout time.Duration) *RedisAccountRepository {
	if prefix == "" {
		prefix = "auth:"
	}
	if opTimeout <= 0 {
		opTimeout = 2 * time.Second
	}
	return &RedisAccountRepository{
		client:    client,
		prefix:    prefix,
		opTimeout: opTimeout,
	}
}

func (r *RedisAccountRepository) accountPrefix() string { return r.prefix + "acct:" }
func (r *RedisAccountRepository) pendingPrefix() string { return r.prefix + "pending:email:" }
func (r *RedisAccountRepository) pendingUserPrefix() string {
	return r.prefix + "pending:username:"
}

func (r *RedisAccountRepository) FindByEmail(ctx context.Context, email string) (domain.Account, error) {
	return r.findByIndex(ctx, r.accountPrefix()+"email:"+email)
}

func (r *RedisAccountRepository) FindByUsername(ctx context.Context, username string) (domain.Account, error) {
	return r.findByIndex(ctx, r.accountPrefix()+"username:"+username)
}

func (r *RedisAccountRepository) findByIndex(ctx context.Context, indexKey string) (domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	id, err := r.client.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Account{}, ErrNotFound
	}
	if err != nil {
		return domain.Account{}, err
	}
	return r.loadAccount(ctx, id)
}

func (r *RedisAccountRepository) FindByID(ctx context.Context, id string) (domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	return r.loadAccount(ctx, id)
}

func (r *RedisAccountRepository) loadAccount(ctx context.Context, id string) (domain.Account, error) {
	fields, err := r.client.HGetAll(ctx, r.accountPrefix()+"id:"+id).Result()
	if err != nil {
		return domain.Account{}, err
	}
	if len(fields) == 0 {
		return domain.Account{}, ErrNotFound
	}
	acc := domain.Account{
		ID:           fields["id"],
		Username:     fields["username"],
		Email:        fields["email"],
		PasswordHash: fields["password_hash"],
		CreatedAt:    parseMillis(fields["created_at"]),
	}
	if bio, ok := fields["bio"]; ok {
		acc.Bio = &bio
	}
	return acc, nil
}

func (r *RedisAccountRepository) FindPending(ctx context.Context, email string) (domain.PendingSignup, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	fields, err := r.client.HGetAll(ctx, r.pendingPrefix()+email).Result()
	if err != nil {
		return domain.PendingSignup{}, err
	}
	if len(fields) == 0 {
		return domain.PendingSignup{}, ErrNotFound
	}
	return domain.PendingSignup{
		Email:        fields["email"],
		Username:     fields["username"],
		PasswordHash: fields["password_hash"],
		OtpCodeHash:  fields["otp_code_hash"],
		OtpExpiresAt: parseMillis(fields["otp_expires_at"]),
		CreatedAt:    parseMillis(fields["created_at"]),
	}, nil
}

func (r *RedisAccountRepository) InsertPending(ctx context.Context, pending domain.PendingSignup, now time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	keys := []string{
		r.accountPrefix() + "email:" + pending.Email,
		r.accountPrefix() + "username:" + pending.Username,
		r.pendingPrefix() + pending.Email,
		r.pendingUserPrefix() + pending.Username,
	}
	res, err := insertPendingScript.Run(ctx, r.client, keys,
		now.UnixMilli(),
		pending.Email,
		pending.Username,
		pending.PasswordHash,
		pending.OtpCodeHash,
		pending.OtpExpiresAt.UnixMilli(),
		pending.CreatedAt.UnixMilli(),
		pending.OtpExpiresAt.Add(pendingRetention).UnixMilli(),
		r.pendingPrefix(),
		r.pendingUserPrefix(),
	).Text()
	if err != nil {
		return err
	}
	switch res {
	case "ok":
		return nil
	case "email", "username":
		return fmt.Errorf("%w: %s", ErrConflict, res)
	default:
		return fmt.Errorf("unexpected insert pending reply %q", res)
	}
}

func (r *RedisAccountRepository) DeletePending(ctx context.Context, email string) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()
	return deletePendingScript.Run(ctx, r.client,
		[]string{r.pendingPrefix() + email},
		r.pendingUserPrefix(),
		email,
	).Err()
}

func (r *RedisAccountRepository) Promote(ctx context.Context, checked domain.PendingSignup, accountID string, now time.Time) (domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	keys := []string{
		r.pendingPrefix() + checked.Email,
		r.accountPrefix() + "email:" + checked.Email,
		r.accountPrefix() + "username:" + checked.Username,
		r.accountPrefix() + "id:" + accountID,
		r.pendingUserPrefix() + checked.Username,
	}
	vals, err := promoteScript.Run(ctx, r.client, keys,
		accountID,
		checked.Username,
		checked.OtpCodeHash,
		now.UnixMilli(),
	).StringSlice()
	if errors.Is(err, redis.Nil) {
		return domain.Account{}, ErrNotFound
	}
	if err != nil {
		if strings.Contains(err.Error(), "conflict") {
			return domain.Account{}, ErrConflict
		}
		return domain.Account{}, err
	}
	if len(vals) != 3 {
		return domain.Account{}, fmt.Errorf("unexpected promote reply length %d", len(vals))
	}
	return domain.Account{
		ID:           accountID,
		Email:        vals[0],
		Username:     vals[1],
		PasswordHash: vals[2],
		CreatedAt:    time.UnixMilli(now.UnixMilli()).UTC(),
	}, nil
}

func (r *RedisAccountRepository) UpdateBio(ctx context.Context, accountID string, bio *string) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	mode, value := "clear", ""
	if bio != nil {
		mode, value = "set", *bio
	}
	n, err := updateBioScript.Run(ctx, r.client,
		[]string{r.accountPrefix() + "id:" + accountID},
		mode,
		value,
	).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func parseMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
