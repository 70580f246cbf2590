package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS deliveries (
    id           TEXT PRIMARY KEY,
    mail_id      TEXT NOT NULL,
    mail_name    TEXT NOT NULL,
    recipient    TEXT NOT NULL DEFAULT '',
    attempted_at DATETIME NOT NULL,
    outcome      TEXT NOT NULL,
    error_kind   TEXT NOT NULL DEFAULT '',
    error        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_deliveries_mail ON deliveries(mail_name);
CREATE INDEX IF NOT EXISTS idx_deliveries_attempted ON deliveries(attempted_at DESC);
`
