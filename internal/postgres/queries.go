package postgres

const qSchema = `
CREATE TABLE IF NOT EXISTS trip_messages (
	id         TEXT        PRIMARY KEY,
	trip_id    TEXT        NOT NULL,
	sender_id  TEXT        NOT NULL,
	text       TEXT        NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS trip_messages_trip_created_idx
	ON trip_messages (trip_id, created_at DESC, id DESC);
`

const qInsertMessage = `
	INSERT INTO trip_messages (id, trip_id, sender_id, text, created_at)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id, trip_id, sender_id, text, created_at`

const qCursorLookup = `
	SELECT created_at, id
	FROM trip_messages
	WHERE trip_id = $1 AND id = $2`

const qHistory = `
	SELECT id, trip_id, sender_id, text, created_at
	FROM trip_messages
	WHERE trip_id = $1
	  AND (
	    $2::timestamptz IS NULL
	    OR created_at < $2
	    OR (created_at = $2 AND id < $3)
	  )
	ORDER BY created_at DESC, id DESC
	LIMIT $4`
