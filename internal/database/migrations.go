package database

const schema = `
CREATE TABLE IF NOT EXISTS emails (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id TEXT UNIQUE NOT NULL,
    thread_id TEXT,
    in_reply_to TEXT,
    email_references TEXT,
    date_sent DATETIME NOT NULL,
    date_received DATETIME DEFAULT CURRENT_TIMESTAMP,
    subject TEXT,
    from_address TEXT NOT NULL,
    from_name TEXT,
    reply_to TEXT,
    body_text TEXT,
    body_html TEXT,
    snippet TEXT,
    is_read BOOLEAN DEFAULT false,
    is_starred BOOLEAN DEFAULT false,
    is_important BOOLEAN DEFAULT false,
    is_draft BOOLEAN DEFAULT false,
    is_sent BOOLEAN DEFAULT false,
    is_trash BOOLEAN DEFAULT false,
    is_spam BOOLEAN DEFAULT false,
    size_bytes INTEGER DEFAULT 0,
    has_attachments BOOLEAN DEFAULT false,
    attachment_count INTEGER DEFAULT 0,
    folder TEXT DEFAULT 'INBOX',
    labels TEXT,
    raw_headers TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS recipients (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email_id INTEGER NOT NULL REFERENCES emails(id) ON DELETE CASCADE,
    type TEXT CHECK(type IN ('to', 'cc', 'bcc')) NOT NULL,
    address TEXT NOT NULL,
    name TEXT,
    domain TEXT GENERATED ALWAYS AS (
        LOWER(SUBSTR(address, INSTR(address, '@') + 1))
    ) STORED
);

CREATE TABLE IF NOT EXISTS attachments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email_id INTEGER NOT NULL REFERENCES emails(id) ON DELETE CASCADE,
    filename TEXT NOT NULL,
    content_type TEXT,
    size_bytes INTEGER DEFAULT 0,
    content_id TEXT,
    is_inline BOOLEAN DEFAULT false,
    file_extension TEXT
);

CREATE INDEX IF NOT EXISTS idx_emails_date_sent ON emails(date_sent DESC);
CREATE INDEX IF NOT EXISTS idx_emails_from_address ON emails(from_address);
CREATE INDEX IF NOT EXISTS idx_emails_thread_id ON emails(thread_id);
CREATE INDEX IF NOT EXISTS idx_emails_folder ON emails(folder);
CREATE INDEX IF NOT EXISTS idx_emails_is_read ON emails(is_read);
CREATE INDEX IF NOT EXISTS idx_recipients_email_id ON recipients(email_id);
CREATE INDEX IF NOT EXISTS idx_recipients_address ON recipients(address);
CREATE INDEX IF NOT EXISTS idx_recipients_domain ON recipients(domain);
CREATE INDEX IF NOT EXISTS idx_attachments_email_id ON attachments(email_id);
CREATE INDEX IF NOT EXISTS idx_attachments_extension ON attachments(file_extension);

CREATE VIRTUAL TABLE IF NOT EXISTS emails_fts USING fts5(
    message_id UNINDEXED,
    subject,
    from_address,
    from_name,
    body_text,
    recipient_addresses,
    attachment_names,
    tokenize = 'porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS emails_fts_insert
AFTER INSERT ON emails
BEGIN
    INSERT INTO emails_fts(message_id, subject, from_address, from_name, body_text)
    VALUES (NEW.message_id, NEW.subject, NEW.from_address, NEW.from_name, NEW.body_text);
END;

CREATE TRIGGER IF NOT EXISTS emails_fts_update
AFTER UPDATE ON emails
BEGIN
    UPDATE emails_fts
    SET subject = NEW.subject,
        from_address = NEW.from_address,
        from_name = NEW.from_name,
        body_text = NEW.body_text
    WHERE message_id = NEW.message_id;
END;

CREATE TRIGGER IF NOT EXISTS emails_fts_delete
AFTER DELETE ON emails
BEGIN
    DELETE FROM emails_fts WHERE message_id = OLD.message_id;
END;
`
