package sqlinline

const QSelectProviderCredential = `--sql b19b1130-71b0-4190-bcc3-45c2fe1cf80e
select token
from provider_credentials
where provider = $1::text
limit 1;
`

const QUpsertProviderCredential = `--sql 102644c1-0729-4126-ac86-293bde0d2c79
insert into provider_credentials (provider, token, properties, created_at, updated_at)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`
