package redis

import "github.com/redis/go-redis/v9"

// Multi-key transitions must happen in a single server-side script; emulating
// them with independent writes races against peer workers. Both scripts are
// idempotent over the observable state, so a retried execution is harmless.

// createScript writes a new job hash and queues it in one step, so a crash
// can never leave a hash without its queue entry.
//
// KEYS[1] = job hash key
// KEYS[2] = queue sorted set
// ARGV[1] = now, unix seconds (queue score)
// ARGV[2] = job id (queue member)
// ARGV[3..] = hash field/value pairs
//
// Returns 0 without writing when the job already exists.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
for i = 3, #ARGV, 2 do
	redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call('ZADD', KEYS[2], tonumber(ARGV[1]), ARGV[2])
return 1
`)

// claimScript atomically claims the oldest eligible job.
//
// KEYS[1] = queue sorted set (member: job id, score: not-before unix seconds)
// KEYS[2] = in-progress sorted set (member: job id, score: started-at unix seconds)
// ARGV[1] = now, unix seconds
// ARGV[2] = claiming worker id
// ARGV[3] = now, ISO 8601
// ARGV[4] = job key prefix
// ARGV[5] = max candidates to inspect
//
// Walks due queue members in score order. A member whose hash is gone, whose
// status is no longer Queued/Scheduled, or which already has an owner is
// stale: it is dropped from the queue and the walk continues. The first live
// candidate is transitioned to InProgress and its full hash is returned;
// false signals no eligible job.
var claimScript = redis.NewScript(`
local candidates = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[5]))
for _, id in ipairs(candidates) do
	local key = ARGV[4] .. id
	local status = redis.call('HGET', key, 'Status')
	local worker = redis.call('HGET', key, 'WorkerId')
	if status ~= false and (status == '100' or status == '200') and (worker == false or worker == '') then
		redis.call('HSET', key,
			'Status', '300',
			'WorkerId', ARGV[2],
			'StartedAt', ARGV[3],
			'StartedAtUnix', ARGV[1],
			'RetryDelayUntil', '',
			'LastUpdatedAt', ARGV[3])
		redis.call('ZREM', KEYS[1], id)
		redis.call('ZADD', KEYS[2], tonumber(ARGV[1]), id)
		return redis.call('HGETALL', key)
	end
	redis.call('ZREM', KEYS[1], id)
end
return false
`)

// recoverScript rescues jobs stuck InProgress at or before the timeout
// instant.
//
// KEYS[1] = in-progress sorted set
// KEYS[2] = queue sorted set
// ARGV[1] = timeout instant, unix seconds
// ARGV[2] = default max retries for jobs missing the field
// ARGV[3] = now, unix seconds
// ARGV[4] = now, ISO 8601
// ARGV[5] = job key prefix
// ARGV[6] = canonical max-retries-exceeded error, JSON
//
// Jobs with retry budget left are rescheduled for immediate re-claim
// (queue score = now) with RetryCount incremented; exhausted jobs become
// Failed. Members whose hash disagrees with the sorted set are stale and are
// dropped. Returns the number of jobs rescheduled.
var recoverScript = redis.NewScript(`
local stuck = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local recovered = 0
for _, id in ipairs(stuck) do
	local key = ARGV[5] .. id
	local status = redis.call('HGET', key, 'Status')
	local startedUnix = redis.call('HGET', key, 'StartedAtUnix')
	if status == '300' and startedUnix ~= false and startedUnix ~= '' and tonumber(startedUnix) <= tonumber(ARGV[1]) then
		local rc = tonumber(redis.call('HGET', key, 'RetryCount') or '0') or 0
		local mr = redis.call('HGET', key, 'MaxRetries')
		if mr == false or mr == '' then mr = ARGV[2] end
		if rc < tonumber(mr) then
			redis.call('HSET', key,
				'Status', '200',
				'RetryCount', tostring(rc + 1),
				'WorkerId', '',
				'StartedAt', '',
				'StartedAtUnix', '',
				'RetryDelayUntil', '',
				'LastUpdatedAt', ARGV[4])
			redis.call('ZADD', KEYS[2], tonumber(ARGV[3]), id)
			recovered = recovered + 1
		else
			redis.call('HSET', key,
				'Status', '500',
				'Error', ARGV[6],
				'WorkerId', '',
				'StartedAt', '',
				'StartedAtUnix', '',
				'CompletedAt', ARGV[4],
				'LastUpdatedAt', ARGV[4])
		end
	end
	redis.call('ZREM', KEYS[1], id)
end
return recovered
`)
