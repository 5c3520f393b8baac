package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- CONVERSATION TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS conversation SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS title ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON conversation TYPE datetime DEFAULT time::now() READONLY;
    DEFINE FIELD IF NOT EXISTS updated_at ON conversation TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS message_count ON conversation TYPE int DEFAULT 0 ASSERT $value >= 0;

    DEFINE INDEX IF NOT EXISTS conversation_updated ON conversation FIELDS updated_at;
    DEFINE INDEX IF NOT EXISTS conversation_created ON conversation FIELDS created_at;

    -- ==========================================================================
    -- MESSAGE TABLE
    -- ==========================================================================
    -- Messages are immutable; history order is (conversation, created_at)
    DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS conversation ON message TYPE record<conversation>;
    DEFINE FIELD IF NOT EXISTS role ON message TYPE string ASSERT $value IN ["user", "assistant", "system"];
    DEFINE FIELD IF NOT EXISTS content ON message TYPE string;
    -- Augmented text the model saw, when it differs from content
    DEFINE FIELD IF NOT EXISTS model_content ON message TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS file ON message TYPE option<object> FLEXIBLE;  -- {filename, type, url, size}
    DEFINE FIELD IF NOT EXISTS citations ON message TYPE array<object> FLEXIBLE DEFAULT [];  -- [{title, url, snippet}]
    DEFINE FIELD IF NOT EXISTS created_at ON message TYPE datetime DEFAULT time::now() READONLY;

    DEFINE INDEX IF NOT EXISTS message_conversation_time ON message FIELDS conversation, created_at;
`
