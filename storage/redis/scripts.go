package redis

import goredis "github.com/redis/go-redis/v9"

// Every script receives the key prefix as ARGV[1]. Session hashes live at
// <prefix>s:<id>; <prefix>idx:updated and <prefix>idx:created are sorted
// sets scored by timestamp; <prefix>user:n:<uid> and <prefix>user:s:<uid>
// hold a user's tokens with score 0 so they range in token order;
// <prefix>users:n and <prefix>users:s are the sets of owners. None of these
// keys pass through KEYS, which is why the store is single-node only.
const libLua = `
local function unindex(p, id, kind, uid)
  local k = p .. 'user:' .. kind .. ':' .. uid
  redis.call('ZREM', k, id)
  if redis.call('ZCARD', k) == 0 then
    redis.call('SREM', p .. 'users:' .. kind, uid)
  end
end

local function remove(p, id)
  local key = p .. 's:' .. id
  if redis.call('EXISTS', key) == 0 then
    return 0
  end
  local owner = redis.call('HMGET', key, 'user_id', 'user_id_str')
  if owner[1] then unindex(p, id, 'n', owner[1]) end
  if owner[2] then unindex(p, id, 's', owner[2]) end
  redis.call('DEL', key)
  redis.call('ZREM', p .. 'idx:updated', id)
  redis.call('ZREM', p .. 'idx:created', id)
  return 1
end

local function write(p, id, kind, uid, content, flash, updated, created)
  local key = p .. 's:' .. id
  redis.call('HSET', key, 'content', content, 'flash', flash, 'updated_at', updated, 'created_at', created)
  if kind == 'n' then
    redis.call('HSET', key, 'user_id', uid)
  elseif kind == 's' then
    redis.call('HSET', key, 'user_id_str', uid)
  end
  if kind ~= '' then
    redis.call('ZADD', p .. 'user:' .. kind .. ':' .. uid, 0, id)
    redis.call('SADD', p .. 'users:' .. kind, uid)
  end
  redis.call('ZADD', p .. 'idx:updated', updated, id)
  redis.call('ZADD', p .. 'idx:created', created, id)
end

local function remove_all(p, ids)
  local n = 0
  for _, id in ipairs(ids) do
    n = n + remove(p, id)
  end
  return n
end
`

// ARGV: prefix, id, kind, uid, content, flash, updated_at, created_at.
var insertScript = goredis.NewScript(libLua + `
if redis.call('EXISTS', ARGV[1] .. 's:' .. ARGV[2]) == 1 then
  return 0
end
write(ARGV[1], ARGV[2], ARGV[3], ARGV[4], ARGV[5], ARGV[6], ARGV[7], ARGV[8])
return 1
`)

// ARGV: prefix, id, kind, uid, content, flash, updated_at, created_at.
var upsertScript = goredis.NewScript(libLua + `
remove(ARGV[1], ARGV[2])
write(ARGV[1], ARGV[2], ARGV[3], ARGV[4], ARGV[5], ARGV[6], ARGV[7], ARGV[8])
return 1
`)

// ARGV: prefix, id.
var destroyScript = goredis.NewScript(libLua + `
return remove(ARGV[1], ARGV[2])
`)

// ARGV: prefix.
var clearScript = goredis.NewScript(libLua + `
return remove_all(ARGV[1], redis.call('ZRANGE', ARGV[1] .. 'idx:created', 0, -1))
`)

// ARGV: prefix, updated_before, created_before.
var sweepScript = goredis.NewScript(libLua + `
local n = remove_all(ARGV[1], redis.call('ZRANGEBYSCORE', ARGV[1] .. 'idx:updated', '-inf', '(' .. ARGV[2]))
n = n + remove_all(ARGV[1], redis.call('ZRANGEBYSCORE', ARGV[1] .. 'idx:created', '-inf', '(' .. ARGV[3]))
return n
`)

// ARGV: prefix, kind, uid.
var destroyUserScript = goredis.NewScript(libLua + `
return remove_all(ARGV[1], redis.call('ZRANGE', ARGV[1] .. 'user:' .. ARGV[2] .. ':' .. ARGV[3], 0, -1))
`)
