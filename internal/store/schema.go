package store

const Schema = `
CREATE TABLE IF NOT EXISTS tracks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	artists TEXT NOT NULL,
	title TEXT NOT NULL,
	normalized_artists TEXT NOT NULL,
	normalized_title TEXT NOT NULL,
	album TEXT,
	duration_ms INTEGER,
	isrc TEXT,
	cover_url TEXT,
	genre TEXT,
	bpm INTEGER,
	release_date TEXT,
	spotify_added_at DATETIME,
	explicit BOOLEAN NOT NULL DEFAULT 0,
	searched_not_found BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tracks_normalized ON tracks(normalized_artists, normalized_title);
CREATE INDEX IF NOT EXISTS idx_tracks_isrc ON tracks(isrc);

CREATE TABLE IF NOT EXISTS track_identities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	track_id INTEGER NOT NULL,
	provider TEXT NOT NULL,
	provider_track_id TEXT NOT NULL,
	provider_url TEXT,
	fingerprint TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (provider, provider_track_id),
	FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_identities_track ON track_identities(track_id);

CREATE TABLE IF NOT EXISTS playlists (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	provider TEXT NOT NULL,
	provider_playlist_id TEXT,
	name TEXT NOT NULL,
	owner TEXT,
	snapshot TEXT,
	source_account_id INTEGER,
	selected BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (provider, provider_playlist_id),
	FOREIGN KEY (source_account_id) REFERENCES source_accounts(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS playlist_tracks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	playlist_id INTEGER NOT NULL,
	track_id INTEGER NOT NULL,
	position INTEGER,
	added_at DATETIME,
	UNIQUE (playlist_id, track_id),
	FOREIGN KEY (playlist_id) REFERENCES playlists(id) ON DELETE CASCADE,
	FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_playlist_tracks_track ON playlist_tracks(track_id);

CREATE TABLE IF NOT EXISTS search_candidates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	track_id INTEGER NOT NULL,
	provider TEXT NOT NULL,
	external_id TEXT NOT NULL,
	url TEXT NOT NULL,
	title TEXT NOT NULL,
	channel TEXT,
	duration_sec INTEGER,
	score REAL NOT NULL DEFAULT 0,
	chosen BOOLEAN NOT NULL DEFAULT 0,
	score_breakdown TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (track_id, provider, external_id),
	FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_candidates_track ON search_candidates(track_id);

CREATE TABLE IF NOT EXISTS downloads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	track_id INTEGER NOT NULL,
	candidate_id INTEGER,
	provider TEXT NOT NULL DEFAULT 'youtube',
	status TEXT NOT NULL DEFAULT 'queued',
	filepath TEXT,
	format TEXT,
	filesize_bytes INTEGER,
	checksum TEXT,
	error_message TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	started_at DATETIME,
	finished_at DATETIME,
	FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE,
	FOREIGN KEY (candidate_id) REFERENCES search_candidates(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_downloads_track ON downloads(track_id);
CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status);

CREATE TABLE IF NOT EXISTS library_files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	track_id INTEGER NOT NULL,
	filepath TEXT NOT NULL UNIQUE,
	file_size INTEGER,
	file_mtime DATETIME,
	checksum TEXT,
	container TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_library_files_track ON library_files(track_id);

CREATE TABLE IF NOT EXISTS source_accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	provider TEXT NOT NULL,
	name TEXT NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT 1,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (provider, name)
);

CREATE TABLE IF NOT EXISTS oauth_tokens (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_account_id INTEGER NOT NULL UNIQUE,
	provider TEXT NOT NULL,
	access_token TEXT NOT NULL,
	refresh_token_encrypted TEXT,
	scope TEXT,
	token_type TEXT,
	expires_at DATETIME,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (source_account_id) REFERENCES source_accounts(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS oauth_states (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	provider TEXT NOT NULL,
	source_account_id INTEGER NOT NULL,
	state TEXT NOT NULL UNIQUE,
	code_verifier TEXT NOT NULL,
	redirect_to TEXT,
	consumed BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	used_at DATETIME,
	FOREIGN KEY (source_account_id) REFERENCES source_accounts(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	description TEXT NOT NULL,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`
