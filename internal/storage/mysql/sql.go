package mysql

const upsertListingSQL = `
INSERT INTO listings
  (id, host_id, title, city, country, currency, nightly_rate,
   override_amount, override_from, override_to,
   promotion_kind, promotion_value, active, raw)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  host_id         = VALUES(host_id),
  title           = VALUES(title),
  city            = VALUES(city),
  country         = VALUES(country),
  currency        = VALUES(currency),
  nightly_rate    = VALUES(nightly_rate),
  override_amount = VALUES(override_amount),
  override_from   = VALUES(override_from),
  override_to     = VALUES(override_to),
  promotion_kind  = VALUES(promotion_kind),
  promotion_value = VALUES(promotion_value),
  active          = VALUES(active),
  raw             = VALUES(raw),
  updated_at      = CURRENT_TIMESTAMP
`

const insertRefundsPrefix = "INSERT INTO refund_requests\n" +
	"  (id, booking_id, user_id, amount, currency, reason, rejection_reason, status, resubmission_count, created_at, updated_at)\n" +
	"VALUES "

// COALESCE keeps the stored value when the backend omitted a field.
const insertRefundsOnDup = " ON DUPLICATE KEY UPDATE\n" +
	"  booking_id         = COALESCE(VALUES(booking_id), refund_requests.booking_id),\n" +
	"  user_id            = VALUES(user_id),\n" +
	"  amount             = VALUES(amount),\n" +
	"  currency           = VALUES(currency),\n" +
	"  reason             = COALESCE(VALUES(reason), refund_requests.reason),\n" +
	"  rejection_reason   = COALESCE(VALUES(rejection_reason), refund_requests.rejection_reason),\n" +
	"  status             = VALUES(status),\n" +
	"  resubmission_count = VALUES(resubmission_count),\n" +
	"  created_at         = COALESCE(VALUES(created_at), refund_requests.created_at),\n" +
	"  updated_at         = COALESCE(VALUES(updated_at), refund_requests.updated_at)\n"

const insertMissSQL = `
INSERT INTO sync_misses (kind, ref_id, http_status, reason)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  http_status = VALUES(http_status),
  reason      = VALUES(reason),
  seen_at     = CURRENT_TIMESTAMP
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const listingColumns = `
  id, host_id, title, city, country, currency, nightly_rate,
  override_amount, override_from, override_to,
  promotion_kind, promotion_value, active, updated_at
`

const getListingSQL = `SELECT` + listingColumns + `FROM listings WHERE id = ?`

// Keyset pagination: caller passes the last seen id (0 for the first page).
const listListingsSQL = `SELECT` + listingColumns + `FROM listings
WHERE active = 1
  AND (? IS NULL OR city = ?)
  AND id > ?
ORDER BY id
LIMIT ?`

const refundColumns = `
  id, booking_id, user_id, amount, currency, reason, rejection_reason,
  status, resubmission_count, created_at, updated_at
`

const getRefundSQL = `SELECT` + refundColumns + `FROM refund_requests WHERE id = ?`

const listRefundsSQL = `SELECT` + refundColumns + `FROM refund_requests
WHERE (? IS NULL OR user_id = ?)
  AND (? IS NULL OR status = ?)
ORDER BY COALESCE(updated_at, created_at) DESC, id
LIMIT ?`
