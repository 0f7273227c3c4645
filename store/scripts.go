package store

import "github.com/redis/go-redis/v9"

// consumeWindowScript charges a fixed window.
//
// KEYS[1] window hash (fields: remaining, reset)
// ARGV    limit, cost, window ms, now ms, server clock ("1" reads TIME)
// Returns {allowed, remaining, reset ms}.
var consumeWindowScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local cost = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
if ARGV[5] == '1' then
  local t = redis.call('TIME')
  now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
end

local vals = redis.call('HMGET', KEYS[1], 'remaining', 'reset')
local remaining = tonumber(vals[1])
local reset = tonumber(vals[2])

if remaining == nil or reset == nil or now >= reset then
  remaining = limit
  reset = now + window
end
if remaining > limit then
  remaining = limit
end

local allowed = 0
if remaining >= cost then
  remaining = remaining - cost
  allowed = 1
end

redis.call('HSET', KEYS[1], 'remaining', remaining, 'reset', reset)
local ttl = reset - now
if ttl < 1 then
  ttl = 1
end
redis.call('PEXPIRE', KEYS[1], ttl)

return {allowed, remaining, reset}
`)

// recordViolationScript escalates a block.
//
// KEYS[1] block hash (fields: count, expires, duration)
// ARGV    now ms, base ms, max ms, memory ms, server clock ("1" reads TIME)
// Returns {count, expires ms, duration ms}.
var recordViolationScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local base = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local memory = tonumber(ARGV[4])
if ARGV[5] == '1' then
  local t = redis.call('TIME')
  now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
end

local vals = redis.call('HMGET', KEYS[1], 'count', 'expires')
local count = tonumber(vals[1]) or 0
local expires = tonumber(vals[2]) or 0

if count > 0 and now >= expires + memory then
  count = 0
end
count = count + 1

local dur = base
for i = 2, count do
  if dur >= max then
    break
  end
  dur = dur * 2
end
if dur > max then
  dur = max
end

expires = now + dur
redis.call('HSET', KEYS[1], 'count', count, 'expires', expires, 'duration', dur)
redis.call('PEXPIRE', KEYS[1], dur + memory)

return {count, expires, dur}
`)
