package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"assetline/internal/domain"
	"assetline/internal/lifecycle"
)

func (r Repo) InsertAssetTx(ctx context.Context, tx *sql.Tx, a domain.Asset) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO assets(id,name,brand,tracking,serial,quantity,status,request_id,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Name, nullable(a.Brand), string(a.Tracking), nullable(a.Serial), a.Quantity, a.Status, nullable(a.RequestID), a.CreatedAt)
	return err
}

func (r Repo) GetAsset(ctx context.Context, id string) (domain.Asset, error) {
	var a domain.Asset
	var brand, serial, requestID sql.NullString
	var tracking string
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,brand,tracking,serial,quantity,status,request_id,created_at FROM assets WHERE id=?`, id).
		Scan(&a.ID, &a.Name, &brand, &tracking, &serial, &a.Quantity, &a.Status, &requestID, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Brand = brand.String
	a.Serial = serial.String
	a.RequestID = requestID.String
	a.Tracking = domain.TrackingMode(tracking)
	return a, nil
}

func (r Repo) ListAssets(ctx context.Context, status string) ([]domain.Asset, error) {
	query := `SELECT id,name,brand,tracking,serial,quantity,status,request_id,created_at FROM assets ORDER BY created_at`
	args := []any{}
	if status != "" {
		query = `SELECT id,name,brand,tracking,serial,quantity,status,request_id,created_at FROM assets WHERE status=? ORDER BY created_at`
		args = append(args, status)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Asset
	for rows.Next() {
		var a domain.Asset
		var brand, serial, requestID sql.NullString
		var tracking string
		if err := rows.Scan(&a.ID, &a.Name, &brand, &tracking, &serial, &a.Quantity, &a.Status, &requestID, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Brand = brand.String
		a.Serial = serial.String
		a.RequestID = requestID.String
		a.Tracking = domain.TrackingMode(tracking)
		out = append(out, a)
	}
	return out, rows.Err()
}

// StockView builds the availability snapshot the assignment validator runs
// against: per-item bulk counts (matched on name and brand) and the set of
// serialized asset identifiers currently free.
func (r Repo) StockView(ctx context.Context, req domain.Request) (lifecycle.StockView, error) {
	view := lifecycle.StockView{
		BulkCount: map[string]int{},
		Available: map[string]bool{},
	}
	for _, item := range req.Items {
		if item.Tracking != domain.TrackBulk {
			continue
		}
		var count sql.NullInt64
		err := r.DB.QueryRowContext(ctx,
			`SELECT SUM(quantity) FROM assets WHERE status=? AND tracking=? AND name=? AND COALESCE(brand,'')=?`,
			domain.AssetAvailable, string(domain.TrackBulk), item.ItemName, item.Brand).Scan(&count)
		if err != nil {
			return view, err
		}
		view.BulkCount[item.ID] = int(count.Int64)
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM assets WHERE status=? AND tracking=?`,
		domain.AssetAvailable, string(domain.TrackSerialized))
	if err != nil {
		return view, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return view, err
		}
		view.Available[id] = true
	}
	return view, rows.Err()
}

// AssignAssetTx marks one serialized asset as assigned to a request. It fails
// if the asset was taken since the stock view was built.
func (r Repo) AssignAssetTx(ctx context.Context, tx *sql.Tx, assetID, requestID string) error {
	res, err := tx.ExecContext(ctx, `UPDATE assets SET status=?, request_id=? WHERE id=? AND status=?`,
		domain.AssetAssigned, requestID, assetID, domain.AssetAvailable)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("asset %s is no longer available", assetID)
	}
	return nil
}

// ConsumeBulkTx draws qty units from available bulk pool rows matching the
// item, oldest first. Rows drained to zero are marked assigned.
func (r Repo) ConsumeBulkTx(ctx context.Context, tx *sql.Tx, name, brand string, qty int, requestID string) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT id,quantity FROM assets WHERE status=? AND tracking=? AND name=? AND COALESCE(brand,'')=? ORDER BY created_at`,
		domain.AssetAvailable, string(domain.TrackBulk), name, brand)
	if err != nil {
		return err
	}
	type pool struct {
		id  string
		qty int
	}
	var pools []pool
	for rows.Next() {
		var p pool
		if err := rows.Scan(&p.id, &p.qty); err != nil {
			rows.Close()
			return err
		}
		pools = append(pools, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	remaining := qty
	for _, p := range pools {
		if remaining == 0 {
			break
		}
		take := p.qty
		if take > remaining {
			take = remaining
		}
		if take == p.qty {
			_, err = tx.ExecContext(ctx, `UPDATE assets SET quantity=0, status=?, request_id=? WHERE id=?`,
				domain.AssetAssigned, requestID, p.id)
		} else {
			_, err = tx.ExecContext(ctx, `UPDATE assets SET quantity=quantity-? WHERE id=?`, take, p.id)
		}
		if err != nil {
			return err
		}
		remaining -= take
	}
	if remaining > 0 {
		return fmt.Errorf("bulk stock for %s underran by %d units", name, remaining)
	}
	return nil
}

// --- handovers ---

func (r Repo) InsertHandoverTx(ctx context.Context, tx *sql.Tx, h domain.Handover) error {
	quantities, err := json.Marshal(h.Quantities)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO handovers(id,request_id,recipient,quantities_json,created_by,created_at) VALUES (?,?,?,?,?,?)`,
		h.ID, h.RequestID, h.Recipient, string(quantities), h.CreatedBy, h.CreatedAt)
	return err
}

func (r Repo) ListHandovers(ctx context.Context, requestID string) ([]domain.Handover, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,request_id,recipient,quantities_json,created_by,created_at FROM handovers WHERE request_id=? ORDER BY created_at`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Handover
	for rows.Next() {
		var h domain.Handover
		var quantities string
		if err := rows.Scan(&h.ID, &h.RequestID, &h.Recipient, &quantities, &h.CreatedBy, &h.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(quantities), &h.Quantities); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
