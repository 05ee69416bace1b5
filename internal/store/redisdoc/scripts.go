package redisdoc

import "github.com/go-redis/redis/v8"

// Lua scripts for atomic per-key writes. The read-modify step runs
// server-side so two concurrent writers for the same key serialize
// inside Redis: the document body, the replica-local creation stamp and
// the membership/active index sets always change together, and readers
// never see a document without its index entries.

// upsertScript writes the document, preserving the existing document's
// sync_created_at across updates.
const upsertScript = `
local doc_key = KEYS[1]
local index_key = KEYS[2]
local active_key = KEYS[3]
local doc = cjson.decode(ARGV[1])
local member = ARGV[2]

local existing = redis.call('GET', doc_key)
if existing then
    local prev = cjson.decode(existing)
    if prev['sync_created_at'] then
        doc['sync_created_at'] = prev['sync_created_at']
    end
end

redis.call('SET', doc_key, cjson.encode(doc))
redis.call('SADD', index_key, member)

if doc['active'] then
    redis.call('SADD', active_key, member)
else
    redis.call('SREM', active_key, member)
end

return 1
`

// markDeletedScript patches the lifecycle fields in place, leaving the
// rest of the document untouched. Returns 0 when no document exists.
const markDeletedScript = `
local doc_key = KEYS[1]
local active_key = KEYS[2]
local member = ARGV[1]
local status = ARGV[2]
local event_id = ARGV[3]
local event_type = ARGV[4]
local updated_at = ARGV[5]

local existing = redis.call('GET', doc_key)
if not existing then
    return 0
end

local doc = cjson.decode(existing)
doc['active'] = false
doc['sync_status'] = status
doc['last_event_id'] = event_id
doc['last_event_type'] = event_type
doc['sync_updated_at'] = updated_at

redis.call('SET', doc_key, cjson.encode(doc))
redis.call('SREM', active_key, member)

return 1
`

var scripts = map[string]*redis.Script{
	"upsert":      redis.NewScript(upsertScript),
	"markDeleted": redis.NewScript(markDeletedScript),
}
