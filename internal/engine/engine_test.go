package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"assetline/internal/authz"
	"assetline/internal/config"
	"assetline/internal/db"
	"assetline/internal/domain"
	"assetline/internal/engine"
	"assetline/internal/lifecycle"
	"assetline/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng, err := engine.New(conn, config.Default())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	seed := []struct {
		id   string
		role domain.Role
	}{
		{"root", domain.RoleSuperAdmin},
		{"staff-1", domain.RoleStaff},
		{"staff-2", domain.RoleStaff},
		{"logi", domain.RoleAdminLogistic},
		{"buyer", domain.RoleAdminPurchase},
		{"lead", domain.RoleLeader},
	}
	for i, s := range seed {
		actor := "root"
		if i == 0 {
			actor = "" // bootstrap
		}
		if _, err := eng.CreateUser(ctx, actor, s.id, s.id, s.role); err != nil {
			t.Fatalf("seed %s: %v", s.id, err)
		}
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func submitLaptopAndCables(t *testing.T, env testEnv) domain.Request {
	t.Helper()
	req, err := env.Engine.SubmitRequest(env.Ctx, "staff-1", []engine.ItemInput{
		{ItemName: "Laptop", Brand: "Lenovo", Quantity: 2, Unit: "pcs", Tracking: domain.TrackSerialized},
		{ItemName: "HDMI Cable", Quantity: 5, Unit: "pcs", Tracking: domain.TrackBulk},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return req
}

func fillPurchaseForm(t *testing.T, env testEnv, req domain.Request) domain.Request {
	t.Helper()
	var err error
	for _, item := range req.Items {
		req, err = env.Engine.SetPurchaseDetail(env.Ctx, req.ID, "buyer", item.ID, domain.PurchaseDetail{
			Price: 100, Vendor: "ACME", PONumber: "PO-1", InvoiceNumber: "INV-1", PurchaseDate: "2026-03-01",
		})
		if err != nil {
			t.Fatalf("purchase detail %s: %v", item.ItemName, err)
		}
	}
	return req
}

func TestEndToEndProcurement(t *testing.T) {
	env := newTestEnv(t)
	req := submitLaptopAndCables(t, env)
	if req.Status != domain.StatusPending {
		t.Fatalf("status = %s, want pending", req.Status)
	}

	req, err := env.Engine.ApproveLogistic(env.Ctx, req.ID, "logi", lifecycle.ReviewInput{})
	if err != nil || req.Status != domain.StatusLogisticApproved {
		t.Fatalf("logistic approve: %v (status %s)", err, req.Status)
	}
	req = fillPurchaseForm(t, env, req)
	if req, err = env.Engine.SubmitFinal(env.Ctx, req.ID, "buyer"); err != nil {
		t.Fatalf("submit final: %v", err)
	}
	if req, err = env.Engine.FinalApprove(env.Ctx, req.ID, "lead", nil); err != nil || req.Status != domain.StatusApproved {
		t.Fatalf("final approve: %v (status %s)", err, req.Status)
	}
	if req, err = env.Engine.StartProcurement(env.Ctx, req.ID, "buyer"); err != nil {
		t.Fatalf("start procurement: %v", err)
	}
	if req, err = env.Engine.MarkInDelivery(env.Ctx, req.ID, "buyer"); err != nil {
		t.Fatalf("mark in delivery: %v", err)
	}
	if req, err = env.Engine.MarkArrived(env.Ctx, req.ID, "logi"); err != nil {
		t.Fatalf("mark arrived: %v", err)
	}

	laptop, cable := req.Items[0], req.Items[1]
	if req, err = env.Engine.RegisterAssets(env.Ctx, req.ID, "logi", engine.RegisterInput{
		ItemID: laptop.ID, Serials: []string{"SN-1", "SN-2"},
	}); err != nil {
		t.Fatalf("register laptops: %v", err)
	}
	if req, err = env.Engine.RegisterAssets(env.Ctx, req.ID, "logi", engine.RegisterInput{
		ItemID: cable.ID, Count: 5,
	}); err != nil {
		t.Fatalf("register cables: %v", err)
	}
	if req, err = env.Engine.CompleteStaging(env.Ctx, req.ID, "logi"); err != nil || req.Status != domain.StatusAwaitingHandover {
		t.Fatalf("complete staging: %v (status %s)", err, req.Status)
	}

	assets, err := env.Engine.Repo.ListAssets(env.Ctx, domain.AssetAvailable)
	if err != nil {
		t.Fatalf("list assets: %v", err)
	}
	var laptopIDs []string
	for _, a := range assets {
		if a.Tracking == domain.TrackSerialized {
			laptopIDs = append(laptopIDs, a.ID)
		}
	}
	if len(laptopIDs) != 2 {
		t.Fatalf("serialized assets = %d, want 2", len(laptopIDs))
	}

	req, err = env.Engine.CreateHandover(env.Ctx, req.ID, "logi", engine.HandoverOptions{
		Recipient: "staff-1",
		Lines: []lifecycle.AssignmentLine{
			{ItemID: laptop.ID, AssetIDs: laptopIDs},
			{ItemID: cable.ID, Quantity: 5},
		},
	})
	if err != nil {
		t.Fatalf("create handover: %v", err)
	}
	if req.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want completed", req.Status)
	}

	for _, id := range laptopIDs {
		a, err := env.Engine.Repo.GetAsset(env.Ctx, id)
		if err != nil || a.Status != domain.AssetAssigned {
			t.Fatalf("asset %s: %v (status %s)", id, err, a.Status)
		}
	}
	docs, err := env.Engine.Repo.ListHandovers(env.Ctx, req.ID)
	if err != nil || len(docs) != 1 {
		t.Fatalf("handovers = %d (%v), want 1", len(docs), err)
	}
	acts, err := env.Engine.Repo.LatestActivities(env.Ctx, 50, req.ID, "")
	if err != nil || len(acts) == 0 {
		t.Fatalf("activities: %v (%d entries)", err, len(acts))
	}
}

func TestApprovalNeedsCapability(t *testing.T) {
	env := newTestEnv(t)
	req := submitLaptopAndCables(t, env)
	_, err := env.Engine.ApproveLogistic(env.Ctx, req.ID, "staff-1", lifecycle.ReviewInput{})
	var forbidden authz.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("err = %v, want ForbiddenError", err)
	}
}

func TestCancelRequesterOnly(t *testing.T) {
	env := newTestEnv(t)
	req := submitLaptopAndCables(t, env)
	if _, err := env.Engine.Cancel(env.Ctx, req.ID, "staff-2"); err == nil {
		t.Fatal("expected cancel by non-requester to fail")
	}
	req2, err := env.Engine.Cancel(env.Ctx, req.ID, "staff-1")
	if err != nil || req2.Status != domain.StatusCancelled {
		t.Fatalf("cancel: %v (status %s)", err, req2.Status)
	}
	if _, err := env.Engine.ApproveLogistic(env.Ctx, req.ID, "logi", lifecycle.ReviewInput{}); err == nil {
		t.Fatal("cancelled request must not accept transitions")
	}
}

func TestSubmitFinalBlockedWithoutPurchaseForm(t *testing.T) {
	env := newTestEnv(t)
	req := submitLaptopAndCables(t, env)
	req, err := env.Engine.ApproveLogistic(env.Ctx, req.ID, "logi", lifecycle.ReviewInput{})
	if err != nil {
		t.Fatalf("logistic approve: %v", err)
	}
	_, err = env.Engine.SubmitFinal(env.Ctx, req.ID, "buyer")
	var verr lifecycle.ValidationError
	if !errors.As(err, &verr) || verr.Code != lifecycle.CodePurchaseForm {
		t.Fatalf("err = %v, want %s", err, lifecycle.CodePurchaseForm)
	}
}

func TestPartialReviewPersistsDecision(t *testing.T) {
	env := newTestEnv(t)
	req := submitLaptopAndCables(t, env)
	laptop := req.Items[0]
	req, err := env.Engine.ApproveLogistic(env.Ctx, req.ID, "logi", lifecycle.ReviewInput{
		Lines: []lifecycle.ReviewLine{{ItemID: laptop.ID, Quantity: 1, Reason: "budget"}},
	})
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	got, err := env.Engine.Repo.GetRequest(env.Ctx, req.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	d, ok := got.Decisions[laptop.ID]
	if !ok || d.Status != domain.DecisionPartial || d.ApprovedQuantity != 1 || d.Reason != "budget" {
		t.Fatalf("decision = %+v", d)
	}
}

func TestPermissionUpdateIsSanitized(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.Engine.UpdatePermissions(env.Ctx, "root", "staff-1", []domain.Capability{
		domain.CapRequestsCreate,
		domain.CapApproveFinal, // restricted for staff
	})
	if err != nil {
		t.Fatalf("update permissions: %v", err)
	}
	for _, c := range u.Permissions {
		if c == domain.CapApproveFinal {
			t.Fatal("restricted capability stored")
		}
	}
	var hasView bool
	for _, c := range u.Permissions {
		if c == domain.CapRequestsView {
			hasView = true
		}
	}
	if !hasView {
		t.Fatal("mandatory capability missing after sanitize")
	}
}

func TestBulkHandoverAcrossTwoDocuments(t *testing.T) {
	env := newTestEnv(t)
	req, err := env.Engine.SubmitRequest(env.Ctx, "staff-1", []engine.ItemInput{
		{ItemName: "HDMI Cable", Quantity: 5, Unit: "pcs", Tracking: domain.TrackBulk},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if req, err = env.Engine.ApproveLogistic(env.Ctx, req.ID, "logi", lifecycle.ReviewInput{}); err != nil {
		t.Fatalf("logistic approve: %v", err)
	}
	req = fillPurchaseForm(t, env, req)
	for _, step := range []func() (domain.Request, error){
		func() (domain.Request, error) { return env.Engine.SubmitFinal(env.Ctx, req.ID, "buyer") },
		func() (domain.Request, error) { return env.Engine.FinalApprove(env.Ctx, req.ID, "lead", nil) },
		func() (domain.Request, error) { return env.Engine.StartProcurement(env.Ctx, req.ID, "buyer") },
		func() (domain.Request, error) { return env.Engine.MarkInDelivery(env.Ctx, req.ID, "buyer") },
		func() (domain.Request, error) { return env.Engine.MarkArrived(env.Ctx, req.ID, "logi") },
	} {
		if req, err = step(); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	cable := req.Items[0]
	if req, err = env.Engine.RegisterAssets(env.Ctx, req.ID, "logi", engine.RegisterInput{ItemID: cable.ID, Count: 5}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if req, err = env.Engine.CompleteStaging(env.Ctx, req.ID, "logi"); err != nil {
		t.Fatalf("staging: %v", err)
	}

	req, err = env.Engine.CreateHandover(env.Ctx, req.ID, "logi", engine.HandoverOptions{
		Recipient: "staff-1",
		Lines:     []lifecycle.AssignmentLine{{ItemID: cable.ID, Quantity: 3, Reason: "pilot batch first"}},
	})
	if err != nil {
		t.Fatalf("first handover: %v", err)
	}
	if req.Status != domain.StatusAwaitingHandover || req.HandedOver[cable.ID] != 3 {
		t.Fatalf("after first handover: status %s, handed %d", req.Status, req.HandedOver[cable.ID])
	}

	// The second document covers exactly what is still owed; the drained pool
	// must not be held against it.
	req, err = env.Engine.CreateHandover(env.Ctx, req.ID, "logi", engine.HandoverOptions{
		Recipient: "staff-1",
		Lines:     []lifecycle.AssignmentLine{{ItemID: cable.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("completing handover: %v", err)
	}
	if req.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want completed", req.Status)
	}
	if docs, _ := env.Engine.Repo.ListHandovers(env.Ctx, req.ID); len(docs) != 2 {
		t.Fatalf("handovers = %d, want 2", len(docs))
	}
}

func TestHandoverFailureCommitsNothing(t *testing.T) {
	env := newTestEnv(t)
	req := submitLaptopAndCables(t, env)
	req, err := env.Engine.ApproveLogistic(env.Ctx, req.ID, "logi", lifecycle.ReviewInput{})
	if err != nil {
		t.Fatalf("logistic approve: %v", err)
	}
	req = fillPurchaseForm(t, env, req)
	for _, step := range []func() (domain.Request, error){
		func() (domain.Request, error) { return env.Engine.SubmitFinal(env.Ctx, req.ID, "buyer") },
		func() (domain.Request, error) { return env.Engine.FinalApprove(env.Ctx, req.ID, "lead", nil) },
		func() (domain.Request, error) { return env.Engine.StartProcurement(env.Ctx, req.ID, "buyer") },
		func() (domain.Request, error) { return env.Engine.MarkInDelivery(env.Ctx, req.ID, "buyer") },
		func() (domain.Request, error) { return env.Engine.MarkArrived(env.Ctx, req.ID, "logi") },
	} {
		if req, err = step(); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	laptop, cable := req.Items[0], req.Items[1]
	if req, err = env.Engine.RegisterAssets(env.Ctx, req.ID, "logi", engine.RegisterInput{ItemID: laptop.ID, Serials: []string{"SN-1", "SN-2"}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if req, err = env.Engine.RegisterAssets(env.Ctx, req.ID, "logi", engine.RegisterInput{ItemID: cable.ID, Count: 5}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if req, err = env.Engine.CompleteStaging(env.Ctx, req.ID, "logi"); err != nil {
		t.Fatalf("staging: %v", err)
	}

	// one bogus asset id aborts the whole batch
	_, err = env.Engine.CreateHandover(env.Ctx, req.ID, "logi", engine.HandoverOptions{
		Recipient: "staff-1",
		Lines: []lifecycle.AssignmentLine{
			{ItemID: laptop.ID, AssetIDs: []string{"nope-1", "nope-2"}},
			{ItemID: cable.ID, Quantity: 5},
		},
	})
	var verr lifecycle.ValidationError
	if !errors.As(err, &verr) || verr.Code != lifecycle.CodeAssetUnavailable {
		t.Fatalf("err = %v, want %s", err, lifecycle.CodeAssetUnavailable)
	}
	got, err := env.Engine.Repo.GetRequest(env.Ctx, req.ID)
	if err != nil || got.Status != domain.StatusAwaitingHandover {
		t.Fatalf("status = %s (%v), want awaiting_handover", got.Status, err)
	}
	if docs, _ := env.Engine.Repo.ListHandovers(env.Ctx, req.ID); len(docs) != 0 {
		t.Fatalf("handovers = %d, want 0", len(docs))
	}
}
