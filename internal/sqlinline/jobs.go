package sqlinline

const QInsertJob = `--sql dde45255-7dd4-4c60-9886-7aa3fadbb3aa
insert into jobs (
  id, kind, user_id, source_ref, directive, status, progress,
  visibility, allow_remix, story
)
values ($1::uuid, $2, $3, $4, $5::jsonb, 'queued', 0, $6, $7, $8::jsonb)
returning created_at, updated_at;
`

const QSelectJob = `--sql ca655e28-c600-4e7b-8908-d2ce3ba2fca4
select id::text, kind, user_id, source_ref, directive, status, progress,
       coalesce(result_ref, ''), coalesce(provider_job_id, ''), provider_persisted,
       coalesce(error, ''), visibility, allow_remix, story, created_at, updated_at
from jobs
where id = $1::uuid;
`

const QSelectJobForUser = `--sql eadc7e53-eaca-4b9c-857e-eedaeb5d5fae
select id::text, kind, user_id, source_ref, directive, status, progress,
       coalesce(result_ref, ''), coalesce(provider_job_id, ''), provider_persisted,
       coalesce(error, ''), visibility, allow_remix, story, created_at, updated_at
from jobs
where id = $1::uuid and user_id = $2;
`

const QClaimJob = `--sql 8a3c43f5-45e5-41b4-bebd-ad7b5b3f1f0f
update jobs
set status = 'processing',
    progress = greatest(progress, 1),
    updated_at = now()
where id = $1::uuid and status = 'queued'
returning id::text, kind, user_id, source_ref, directive, status, progress,
          coalesce(result_ref, ''), coalesce(provider_job_id, ''), provider_persisted,
          coalesce(error, ''), visibility, allow_remix, story, created_at, updated_at;
`

const QSetProviderJob = `--sql b145aca4-1cf7-4384-8eb7-cfee7a01e661
update jobs
set provider_job_id = $2, updated_at = now()
where id = $1::uuid and status = 'processing';
`

const QUpdateJobProgress = `--sql f788df09-3879-4978-9e9e-f9cd542877bb
update jobs
set progress = greatest(progress, least(greatest($2::int, 0), 100)),
    updated_at = now()
where id = $1::uuid and status in ('queued', 'processing') and progress < $2::int;
`

const QMarkJobCompleted = `--sql 7623066d-736f-4fb1-b2a9-bb817dfe6d38
update jobs
set status = 'completed',
    progress = 100,
    result_ref = $2,
    error = null,
    updated_at = now()
where id = $1::uuid and status = 'processing';
`

const QMarkJobFailed = `--sql ebf2b852-2230-4dda-b9e5-c99b74473b49
update jobs
set status = 'failed',
    error = $2,
    result_ref = null,
    updated_at = now()
where id = $1::uuid and status = 'processing';
`

const QFinalizeJob = `--sql 0600d3df-0530-4dae-a4aa-23ddb5f76f33
update jobs
set status = 'completed',
    progress = 100,
    result_ref = $2,
    provider_persisted = true,
    error = null,
    updated_at = now()
where id = $1::uuid
  and provider_persisted = false
  and status in ('processing', 'completed')
returning id::text, kind, user_id, source_ref, directive, status, progress,
          coalesce(result_ref, ''), coalesce(provider_job_id, ''), provider_persisted,
          coalesce(error, ''), visibility, allow_remix, story, created_at, updated_at;
`

const QListStaleQueuedJobs = `--sql 974cd768-2e41-414f-92d7-19bd979745a4
select id::text
from jobs
where status = 'queued' and updated_at < $1
order by created_at asc
limit $2;
`

const QTouchStaleQueuedJob = `--sql 5a28526a-8a94-4c24-9e73-d7244e0861cb
update jobs
set updated_at = $3
where id = $1::uuid and status = 'queued' and updated_at < $2;
`
