package hotcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"thermowatch/internal/model"
)

// DefaultKey je klíč "hot" hodnoty, stejná konvence jako sensor:last:{id}.
const DefaultKey = "sensor:last:reading"

// Do klíče hranice se ukládá nejvyšší ID smazané posledním Clear.
const clearedSuffix = ":cleared_through"

// setLatestScript přepíše hodnotu jen tehdy, když je příchozí měření novější
// podle (recorded_at, id) a zároveň nad hranicí posledního smazání.
// Zápis z jiného procesu, který doběhne pozdě, tak nic nevrátí zpět.
//
//	KEYS[1] = hash s poslední hodnotou, KEYS[2] = hranice smazání
//	ARGV = payload, recorded_at (µs), id, ttl (ms)
var setLatestScript = redis.NewScript(`
local through = tonumber(redis.call('GET', KEYS[2]) or '0')
local ts = tonumber(ARGV[2])
local id = tonumber(ARGV[3])
if id <= through then
	return 0
end
local cur = redis.call('HMGET', KEYS[1], 'ts', 'id')
if cur[1] and cur[2] then
	local cts = tonumber(cur[1])
	local cid = tonumber(cur[2])
	if cts > ts or (cts == ts and cid >= id) then
		return 0
	end
end
redis.call('HSET', KEYS[1], 'payload', ARGV[1], 'ts', ARGV[2], 'id', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// clearScript posune hranici (nikdy zpět) a smaže poslední hodnotu.
//
//	KEYS[1] = hash s poslední hodnotou, KEYS[2] = hranice, ARGV[1] = smazáno až po ID
var clearScript = redis.NewScript(`
local through = tonumber(redis.call('GET', KEYS[2]) or '0')
if tonumber(ARGV[1]) > through then
	redis.call('SET', KEYS[2], ARGV[1])
end
redis.call('DEL', KEYS[1])
return 1
`)

// Redis drží poslední uložené měření ve Valkey/Redis.
// Je to jen rychlá cesta pro dashboard; zdroj pravdy je relační DB.
// Zapisuje do ní víc procesů (sensor-bridge i sensor-api), proto jsou
// zápis i mazání atomické skripty.
type Redis struct {
	client     *redis.Client
	key        string
	clearedKey string
	ttl        time.Duration
}

// NewRedis vytvoří cache. Expirace 24h, aby mrtvý senzor z cache zmizel.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{
		client:     client,
		key:        DefaultKey,
		clearedKey: DefaultKey + clearedSuffix,
		ttl:        24 * time.Hour,
	}
}

// SetLatest uloží měření, pokud je novější než to v cache. Vrací true,
// když se hodnota opravdu přepsala.
func (r *Redis) SetLatest(ctx context.Context, reading model.Reading) (bool, error) {
	payload, err := json.Marshal(reading)
	if err != nil {
		return false, fmt.Errorf("marshal reading: %w", err)
	}
	stored, err := setLatestScript.Run(ctx, r.client,
		[]string{r.key, r.clearedKey},
		payload, reading.RecordedAt.UnixMicro(), reading.ID, r.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("chyba update Valkey: %w", err)
	}
	return stored == 1, nil
}

// Latest vrací poslední měření, nebo nil, pokud klíč neexistuje.
func (r *Redis) Latest(ctx context.Context) (*model.Reading, error) {
	payload, err := r.client.HGet(ctx, r.key, "payload").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chyba čtení Valkey: %w", err)
	}

	var reading model.Reading
	if err := json.Unmarshal(payload, &reading); err != nil {
		return nil, fmt.Errorf("poškozená hodnota v cache: %w", err)
	}
	return &reading, nil
}

// Clear smaže poslední hodnotu po vymazání historie. throughID je nejvyšší
// smazané ID; pozdější SetLatest s ID <= throughID se ignoruje.
func (r *Redis) Clear(ctx context.Context, throughID int64) error {
	if err := clearScript.Run(ctx, r.client, []string{r.key, r.clearedKey}, throughID).Err(); err != nil {
		return fmt.Errorf("chyba mazání Valkey: %w", err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
