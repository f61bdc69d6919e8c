package sqlinline

const QInsertAssetForJob = `--sql 8862697f-a19b-4337-ae06-4d7530dbd236
insert into assets (
  id, owner_user_id, source_job_id, media_url, media_type, visibility, allow_remix, meta
)
values ($1::uuid, $2, $3::uuid, $4, $5, $6, $7, $8::jsonb)
on conflict (source_job_id) do nothing
returning created_at;
`

const QSelectAssetBySourceJob = `--sql 8512034f-f988-49cc-88f2-1d757ea7ef12
select id::text, owner_user_id, source_job_id::text, media_url, media_type,
       visibility, allow_remix, meta, created_at
from assets
where source_job_id = $1::uuid;
`

const QListAssetsByOwner = `--sql d8cdc885-923b-4493-b715-6236d81286c8
select id::text, owner_user_id, source_job_id::text, media_url, media_type,
       visibility, allow_remix, meta, created_at
from assets
where owner_user_id = $1
order by created_at desc
limit $2;
`
