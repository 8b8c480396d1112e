package db

const printerColumns = `id, name, capability_type, system_id, paper_size, orientation, quality, priority, is_default, location_ref, department, supports_pdf, supports_html, supports_escpos, supports_zpl, active, created_at, updated_at`

const (
	InsertPrinter = `
		INSERT INTO printers (name, capability_type, system_id, paper_size, orientation, quality, priority, is_default, location_ref, department, supports_pdf, supports_html, supports_escpos, supports_zpl, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	GetPrinterByID = `
		SELECT ` + printerColumns + `
		FROM printers WHERE id = ?
	`

	GetPrinterByName = `
		SELECT ` + printerColumns + `
		FROM printers WHERE name = ?
	`

	GetPrinterBySystemID = `
		SELECT ` + printerColumns + `
		FROM printers WHERE system_id = ?
	`

	ListPrinters = `
		SELECT ` + printerColumns + `
		FROM printers ORDER BY name ASC
	`

	ListActivePrinters = `
		SELECT ` + printerColumns + `
		FROM printers WHERE active = 1 ORDER BY priority DESC, id ASC
	`

	UpdatePrinter = `
		UPDATE printers SET
			name = ?, capability_type = ?, system_id = ?, paper_size = ?, orientation = ?,
			quality = ?, priority = ?, is_default = ?, location_ref = ?, department = ?,
			supports_pdf = ?, supports_html = ?, supports_escpos = ?, supports_zpl = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	SetPrinterActive = `
		UPDATE printers SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`
)

const jobColumns = `id, name, document_type, printer_id, submitter_id, data_format, payload, template_ref, template_data, copies, priority, state, retry_count, error_message, submitted_at, completed_at, created_at`

const (
	InsertJob = `
		INSERT INTO print_jobs (document_type, printer_id, submitter_id, data_format, payload, template_ref, template_data, copies, priority, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	GetJobByID = `
		SELECT ` + jobColumns + `
		FROM print_jobs WHERE id = ?
	`

	SetJobName = `UPDATE print_jobs SET name = ? WHERE id = ?`

	// Highest priority first, oldest first within a tier, id as the final
	// stable tie-break.
	ListQueuedForPrinter = `
		SELECT ` + jobColumns + `
		FROM print_jobs WHERE printer_id = ? AND state = 'queued'
		ORDER BY priority DESC, submitted_at ASC, id ASC
	`

	CountJobsByState = `SELECT COUNT(*) FROM print_jobs WHERE state = ?`

	CountJobsGroupedByState = `SELECT state, COUNT(*) FROM print_jobs GROUP BY state`

	// Conditional state transitions. The WHERE clause on the current state is
	// the mutual-exclusion gate: whichever writer matches first wins, the
	// loser sees zero affected rows.
	MarkJobQueued = `
		UPDATE print_jobs SET state = 'queued', submitted_at = ?, error_message = ?
		WHERE id = ? AND state = 'draft'
	`

	MarkJobPrinting = `
		UPDATE print_jobs SET state = 'printing'
		WHERE id = ? AND state = 'queued'
	`

	MarkJobCompleted = `
		UPDATE print_jobs SET state = 'completed', completed_at = ?, error_message = ''
		WHERE id = ? AND state = 'printing'
	`

	MarkJobFailed = `
		UPDATE print_jobs SET state = 'failed', error_message = ?
		WHERE id = ? AND state = 'printing'
	`

	FinalizeJobFailed = `
		UPDATE print_jobs SET completed_at = ?, error_message = ?
		WHERE id = ? AND state = 'failed' AND completed_at IS NULL
	`

	RequeueJobForRetry = `
		UPDATE print_jobs SET state = 'queued', retry_count = retry_count + 1, error_message = ?
		WHERE id = ? AND state = 'failed' AND completed_at IS NULL
	`

	CancelJob = `
		UPDATE print_jobs SET state = 'cancelled', completed_at = ?, error_message = ?
		WHERE id = ? AND state IN ('draft', 'queued')
	`

	// Reverses a bookkeeping cancellation (aborted batch merge). The original
	// submitted_at is untouched so the job keeps its place in the queue.
	RestoreCancelledJob = `
		UPDATE print_jobs SET state = 'queued', completed_at = NULL, error_message = ''
		WHERE id = ? AND state = 'cancelled'
	`
)

const templateColumns = `id, name, description, body, data_format, created_at, updated_at`

const (
	InsertTemplate = `
		INSERT INTO print_templates (name, description, body, data_format)
		VALUES (?, ?, ?, ?)
	`

	GetTemplateByID = `
		SELECT ` + templateColumns + `
		FROM print_templates WHERE id = ?
	`

	GetTemplateByName = `
		SELECT ` + templateColumns + `
		FROM print_templates WHERE name = ?
	`

	ListTemplates = `
		SELECT ` + templateColumns + `
		FROM print_templates ORDER BY name ASC
	`

	UpdateTemplate = `
		UPDATE print_templates SET
			name = ?, description = ?, body = ?, data_format = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	DeleteTemplate = `DELETE FROM print_templates WHERE id = ?`
)

const (
	GetSetting = `SELECT value, updated_at FROM settings WHERE key = ?`

	SetSetting = `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`

	DeleteSetting = `DELETE FROM settings WHERE key = ?`
)
