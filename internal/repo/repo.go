package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"assetline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- users ---

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	perms, err := json.Marshal(u.Permissions)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO users(id,name,role,permissions_json,created_at) VALUES (?,?,?,?,?)`,
		u.ID, nullable(u.Name), string(u.Role), string(perms), u.CreatedAt)
	return err
}

func (r Repo) EnsureUserTx(ctx context.Context, tx *sql.Tx, u domain.User) error {
	perms, err := json.Marshal(u.Permissions)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO users(id,name,role,permissions_json,created_at) VALUES (?,?,?,?,?)`,
		u.ID, nullable(u.Name), string(u.Role), string(perms), u.CreatedAt)
	return err
}

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var name sql.NullString
	var role, permsJSON string
	err := row.Scan(&u.ID, &name, &role, &permsJSON, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if name.Valid {
		u.Name = name.String
	}
	parsed, ok := domain.ParseRole(role)
	if !ok {
		return u, fmt.Errorf("user %s has unknown role %s", u.ID, role)
	}
	u.Role = parsed
	if err := json.Unmarshal([]byte(permsJSON), &u.Permissions); err != nil {
		return u, fmt.Errorf("user %s permissions: %w", u.ID, err)
	}
	return u, nil
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,name,role,permissions_json,created_at FROM users WHERE id=?`, id))
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,role,permissions_json,created_at FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.User
	for rows.Next() {
		var u domain.User
		var name sql.NullString
		var role, permsJSON string
		if err := rows.Scan(&u.ID, &name, &role, &permsJSON, &u.CreatedAt); err != nil {
			return nil, err
		}
		if name.Valid {
			u.Name = name.String
		}
		parsed, ok := domain.ParseRole(role)
		if !ok {
			return nil, fmt.Errorf("user %s has unknown role %s", u.ID, role)
		}
		u.Role = parsed
		if err := json.Unmarshal([]byte(permsJSON), &u.Permissions); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r Repo) UpdateUserPermissions(ctx context.Context, id string, perms []domain.Capability) error {
	data, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET permissions_json=? WHERE id=?`, string(data), id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateUserRole(ctx context.Context, id string, role domain.Role, perms []domain.Capability) error {
	data, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET role=?, permissions_json=? WHERE id=?`, string(role), string(data), id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- requests ---

func (r Repo) InsertRequestTx(ctx context.Context, tx *sql.Tx, req domain.Request) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO requests(id,requester_id,status,prioritized,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		req.ID, req.RequesterID, string(req.Status), boolInt(req.PrioritizedByCEO), req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	for i, item := range req.Items {
		_, err := tx.ExecContext(ctx, `INSERT INTO request_items(id,request_id,item_name,brand,quantity,unit,tracking,position) VALUES (?,?,?,?,?,?,?,?)`,
			item.ID, req.ID, item.ItemName, nullable(item.Brand), item.Quantity, nullable(item.Unit), string(item.Tracking), i)
		if err != nil {
			return fmt.Errorf("insert request item: %w", err)
		}
	}
	return nil
}

// GetRequest loads the full aggregate: items in declaration order, decisions,
// purchase details and staging/handover progress.
func (r Repo) GetRequest(ctx context.Context, id string) (domain.Request, error) {
	var req domain.Request
	var status string
	var prioritized int
	err := r.DB.QueryRowContext(ctx, `SELECT id,requester_id,status,prioritized,created_at,updated_at FROM requests WHERE id=?`, id).
		Scan(&req.ID, &req.RequesterID, &status, &prioritized, &req.CreatedAt, &req.UpdatedAt)
	if err == sql.ErrNoRows {
		return req, ErrNotFound
	}
	if err != nil {
		return req, err
	}
	parsed, ok := domain.ParseStatus(status)
	if !ok {
		return req, fmt.Errorf("request %s has unknown status %s", id, status)
	}
	req.Status = parsed
	req.PrioritizedByCEO = prioritized != 0

	rows, err := r.DB.QueryContext(ctx, `SELECT id,item_name,brand,quantity,unit,tracking FROM request_items WHERE request_id=? ORDER BY position`, id)
	if err != nil {
		return req, err
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.RequestItem
		var brand, unit sql.NullString
		var tracking string
		if err := rows.Scan(&it.ID, &it.ItemName, &brand, &it.Quantity, &unit, &tracking); err != nil {
			return req, err
		}
		it.Brand = brand.String
		it.Unit = unit.String
		it.Tracking = domain.TrackingMode(tracking)
		req.Items = append(req.Items, it)
	}
	if err := rows.Err(); err != nil {
		return req, err
	}

	if req.Decisions, err = r.loadDecisions(ctx, id); err != nil {
		return req, err
	}
	if req.PurchaseDetails, err = r.loadPurchaseDetails(ctx, id); err != nil {
		return req, err
	}
	if req.Registered, req.HandedOver, err = r.loadProgress(ctx, id); err != nil {
		return req, err
	}
	return req, nil
}

func (r Repo) loadDecisions(ctx context.Context, requestID string) (map[string]domain.ItemDecision, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT item_id,status,approved_quantity,reason FROM item_decisions WHERE request_id=?`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]domain.ItemDecision{}
	for rows.Next() {
		var itemID, status string
		var reason sql.NullString
		var d domain.ItemDecision
		if err := rows.Scan(&itemID, &status, &d.ApprovedQuantity, &reason); err != nil {
			return nil, err
		}
		d.Status = domain.DecisionStatus(status)
		d.Reason = reason.String
		out[itemID] = d
	}
	return out, rows.Err()
}

func (r Repo) loadPurchaseDetails(ctx context.Context, requestID string) (map[string]domain.PurchaseDetail, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT item_id,price,vendor,po_number,invoice_number,purchase_date FROM purchase_details WHERE request_id=?`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]domain.PurchaseDetail{}
	for rows.Next() {
		var itemID string
		var date sql.NullString
		var pd domain.PurchaseDetail
		if err := rows.Scan(&itemID, &pd.Price, &pd.Vendor, &pd.PONumber, &pd.InvoiceNumber, &date); err != nil {
			return nil, err
		}
		pd.PurchaseDate = date.String
		out[itemID] = pd
	}
	return out, rows.Err()
}

func (r Repo) loadProgress(ctx context.Context, requestID string) (map[string]int, map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT item_id,registered,handed_over FROM item_progress WHERE request_id=?`, requestID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	registered := map[string]int{}
	handed := map[string]int{}
	for rows.Next() {
		var itemID string
		var reg, ho int
		if err := rows.Scan(&itemID, &reg, &ho); err != nil {
			return nil, nil, err
		}
		if reg > 0 {
			registered[itemID] = reg
		}
		if ho > 0 {
			handed[itemID] = ho
		}
	}
	return registered, handed, rows.Err()
}

// SaveRequestTx persists a patched aggregate produced by the lifecycle
// reducer: status, flags, decisions, purchase details and progress counters.
// Items are immutable and never rewritten.
func (r Repo) SaveRequestTx(ctx context.Context, tx *sql.Tx, req domain.Request) error {
	res, err := tx.ExecContext(ctx, `UPDATE requests SET status=?, prioritized=?, updated_at=? WHERE id=?`,
		string(req.Status), boolInt(req.PrioritizedByCEO), req.UpdatedAt, req.ID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	for itemID, d := range req.Decisions {
		_, err := tx.ExecContext(ctx, `INSERT INTO item_decisions(request_id,item_id,status,approved_quantity,reason) VALUES (?,?,?,?,?)
ON CONFLICT(request_id,item_id) DO UPDATE SET status=excluded.status, approved_quantity=excluded.approved_quantity, reason=excluded.reason`,
			req.ID, itemID, string(d.Status), d.ApprovedQuantity, nullable(d.Reason))
		if err != nil {
			return fmt.Errorf("save decision: %w", err)
		}
	}
	for itemID, pd := range req.PurchaseDetails {
		_, err := tx.ExecContext(ctx, `INSERT INTO purchase_details(request_id,item_id,price,vendor,po_number,invoice_number,purchase_date) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(request_id,item_id) DO UPDATE SET price=excluded.price, vendor=excluded.vendor, po_number=excluded.po_number, invoice_number=excluded.invoice_number, purchase_date=excluded.purchase_date`,
			req.ID, itemID, pd.Price, pd.Vendor, pd.PONumber, pd.InvoiceNumber, nullable(pd.PurchaseDate))
		if err != nil {
			return fmt.Errorf("save purchase detail: %w", err)
		}
	}
	for _, item := range req.Items {
		reg := req.Registered[item.ID]
		ho := req.HandedOver[item.ID]
		if reg == 0 && ho == 0 {
			continue
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO item_progress(request_id,item_id,registered,handed_over) VALUES (?,?,?,?)
ON CONFLICT(request_id,item_id) DO UPDATE SET registered=excluded.registered, handed_over=excluded.handed_over`,
			req.ID, item.ID, reg, ho)
		if err != nil {
			return fmt.Errorf("save progress: %w", err)
		}
	}
	return nil
}

func (r Repo) ListRequests(ctx context.Context, status domain.Status) ([]domain.Request, error) {
	query := `SELECT id FROM requests ORDER BY created_at DESC`
	args := []any{}
	if status != "" {
		query = `SELECT id FROM requests WHERE status=? ORDER BY created_at DESC`
		args = append(args, string(status))
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.Request, 0, len(ids))
	for _, id := range ids {
		req, err := r.GetRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

// --- activities ---

func (r Repo) LatestActivities(ctx context.Context, n int, requestID, actType string) ([]domain.Activity, error) {
	if n <= 0 {
		n = 20
	}
	query := `SELECT id,ts,type,COALESCE(request_id,''),actor_id,payload_json FROM activities`
	var conds []string
	var args []any
	if requestID != "" {
		conds = append(conds, "request_id=?")
		args = append(args, requestID)
	}
	if actType != "" {
		conds = append(conds, "type=?")
		args = append(args, actType)
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, n)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Activity
	for rows.Next() {
		var a domain.Activity
		if err := rows.Scan(&a.ID, &a.TS, &a.Type, &a.RequestID, &a.ActorID, &a.Payload); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
