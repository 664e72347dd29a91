package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"assetline/internal/app"
	"assetline/internal/config"
	"assetline/internal/db"
	"assetline/internal/domain"
	"assetline/internal/engine"
	"assetline/internal/lifecycle"
	"assetline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "al",
	Short: "Assetline CLI",
	Long: `Assetline manages IT asset procurement end to end: requests walk a
multi-stage approval pipeline (logistic review, purchase preparation, final
approval), then procurement, staging and handover. Capabilities form a
dependency graph; each role carries defaults, mandatory grants and
restrictions. Every change lands in an append-only activity log ('al log tail').`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ASSETLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user", "local-admin", "acting user id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
}

func registerCommands() {
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(assetCmd())
	rootCmd.AddCommand(capabilityCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	eng, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer app.Close(eng)
	if _, err := app.EnsureActor(ctx, eng, viper.GetString("user")); err != nil {
		return err
	}
	return fn(ctx, eng)
}

func actorID() string {
	return viper.GetString("user")
}

// --- request commands ---

func requestCmd() *cobra.Command {
	req := &cobra.Command{Use: "request", Short: "Manage procurement requests"}
	req.AddCommand(requestSubmitCmd())
	req.AddCommand(requestListCmd())
	req.AddCommand(requestShowCmd())
	req.AddCommand(reviewActionCmd("approve-logistic", "First-stage approval",
		func(ctx context.Context, e engine.Engine, id string, in lifecycle.ReviewInput) (domain.Request, error) {
			return e.ApproveLogistic(ctx, id, actorID(), in)
		}))
	req.AddCommand(reviewActionCmd("revise", "First-stage revision without advancing",
		func(ctx context.Context, e engine.Engine, id string, in lifecycle.ReviewInput) (domain.Request, error) {
			return e.ReviseItems(ctx, id, actorID(), in)
		}))
	req.AddCommand(reviewActionCmd("final-revise", "Final-stage revision",
		func(ctx context.Context, e engine.Engine, id string, in lifecycle.ReviewInput) (domain.Request, error) {
			return e.FinalRevise(ctx, id, actorID(), in)
		}))
	req.AddCommand(finalApproveCmd())
	req.AddCommand(bareActionCmd("cancel", "Cancel a request (requester only)",
		func(ctx context.Context, e engine.Engine, id string) (domain.Request, error) {
			return e.Cancel(ctx, id, actorID())
		}))
	req.AddCommand(bareActionCmd("prioritize", "Flag the request as prioritized",
		func(ctx context.Context, e engine.Engine, id string) (domain.Request, error) {
			return e.Prioritize(ctx, id, actorID())
		}))
	req.AddCommand(purchaseDetailCmd())
	req.AddCommand(bareActionCmd("submit-final", "Forward for final approval",
		func(ctx context.Context, e engine.Engine, id string) (domain.Request, error) {
			return e.SubmitFinal(ctx, id, actorID())
		}))
	req.AddCommand(bareActionCmd("start-procurement", "Begin purchasing",
		func(ctx context.Context, e engine.Engine, id string) (domain.Request, error) {
			return e.StartProcurement(ctx, id, actorID())
		}))
	req.AddCommand(bareActionCmd("mark-in-delivery", "Mark goods in delivery",
		func(ctx context.Context, e engine.Engine, id string) (domain.Request, error) {
			return e.MarkInDelivery(ctx, id, actorID())
		}))
	req.AddCommand(bareActionCmd("mark-arrived", "Mark goods arrived",
		func(ctx context.Context, e engine.Engine, id string) (domain.Request, error) {
			return e.MarkArrived(ctx, id, actorID())
		}))
	req.AddCommand(registerAssetsCmd())
	req.AddCommand(bareActionCmd("complete-staging", "Close the staging phase",
		func(ctx context.Context, e engine.Engine, id string) (domain.Request, error) {
			return e.CompleteStaging(ctx, id, actorID())
		}))
	req.AddCommand(handoverCmd())
	return req
}

func requestSubmitCmd() *cobra.Command {
	var items []string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new request",
		Long:  `Each --item takes name:quantity[:tracking[:brand[:unit]]], e.g. --item "Laptop:2:serialized:Lenovo:pcs".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := parseItems(items)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.SubmitRequest(ctx, actorID(), inputs)
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().StringArrayVar(&items, "item", nil, "item spec name:quantity[:tracking[:brand[:unit]]]")
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

func parseItems(specs []string) ([]engine.ItemInput, error) {
	var out []engine.ItemInput
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) < 2 {
			return nil, fmt.Errorf("item spec %q: want name:quantity[:tracking[:brand[:unit]]]", spec)
		}
		qty, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("item spec %q: bad quantity: %w", spec, err)
		}
		in := engine.ItemInput{ItemName: parts[0], Quantity: qty}
		if len(parts) > 2 && parts[2] != "" {
			in.Tracking = domain.TrackingMode(parts[2])
		}
		if len(parts) > 3 {
			in.Brand = parts[3]
		}
		if len(parts) > 4 {
			in.Unit = parts[4]
		}
		out = append(out, in)
	}
	return out, nil
}

func requestListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				reqs, err := e.Repo.ListRequests(ctx, domain.Status(status))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(reqs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Requester", "Status", "Items", "Prioritized", "Updated"})
				for _, r := range reqs {
					tw.AppendRow(table.Row{r.ID, r.RequesterID, r.Status, len(r.Items), r.PrioritizedByCEO, r.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

func requestShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <request-id>",
		Short: "Show a request with decisions and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.Repo.GetRequest(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(req)
				}
				fmt.Printf("Request %s (%s) by %s\n", req.ID, req.Status, req.RequesterID)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Item", "Name", "Requested", "Approved", "Decision", "Registered", "Handed over"})
				for _, it := range req.Items {
					decision := "-"
					approved := it.Quantity
					if d, ok := req.Decisions[it.ID]; ok {
						decision = string(d.Status)
						approved = d.ApprovedQuantity
					}
					tw.AppendRow(table.Row{it.ID, it.ItemName, it.Quantity, approved, decision, req.Registered[it.ID], req.HandedOver[it.ID]})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func reviewActionCmd(use, short string,
	fn func(ctx context.Context, e engine.Engine, id string, in lifecycle.ReviewInput) (domain.Request, error)) *cobra.Command {
	var lines, stock []string
	cmd := &cobra.Command{
		Use:   use + " <request-id>",
		Short: short,
		Long:  `Each --line takes item_id:quantity[:reason]; --stock marks an item as satisfied from existing stock. Items without a line carry forward unchanged.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			review, err := parseReview(lines, stock)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := fn(ctx, e, args[0], review)
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().StringArrayVar(&lines, "line", nil, "review line item_id:quantity[:reason]")
	cmd.Flags().StringArrayVar(&stock, "stock", nil, "item_id fulfilled from stock")
	return cmd
}

func parseReview(lines, stock []string) (lifecycle.ReviewInput, error) {
	var in lifecycle.ReviewInput
	stocked := map[string]bool{}
	for _, s := range stock {
		stocked[s] = true
	}
	for _, spec := range lines {
		parts := strings.SplitN(spec, ":", 3)
		if len(parts) < 2 {
			return in, fmt.Errorf("line %q: want item_id:quantity[:reason]", spec)
		}
		qty, err := strconv.Atoi(parts[1])
		if err != nil {
			return in, fmt.Errorf("line %q: bad quantity: %w", spec, err)
		}
		line := lifecycle.ReviewLine{ItemID: parts[0], Quantity: qty, StockAllocated: stocked[parts[0]]}
		if len(parts) == 3 {
			line.Reason = parts[2]
		}
		delete(stocked, parts[0])
		in.Lines = append(in.Lines, line)
	}
	for id := range stocked {
		return in, fmt.Errorf("--stock %s needs a matching --line with its quantity", id)
	}
	return in, nil
}

func finalApproveCmd() *cobra.Command {
	var lines, stock []string
	cmd := &cobra.Command{
		Use:   "final-approve <request-id>",
		Short: "Final approval, optionally tightening quantities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var review *lifecycle.ReviewInput
			if len(lines) > 0 {
				r, err := parseReview(lines, stock)
				if err != nil {
					return err
				}
				review = &r
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.FinalApprove(ctx, args[0], actorID(), review)
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().StringArrayVar(&lines, "line", nil, "review line item_id:quantity[:reason]")
	cmd.Flags().StringArrayVar(&stock, "stock", nil, "item_id fulfilled from stock")
	return cmd
}

func bareActionCmd(use, short string,
	fn func(ctx context.Context, e engine.Engine, id string) (domain.Request, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <request-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := fn(ctx, e, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
}

func purchaseDetailCmd() *cobra.Command {
	var itemID, vendor, po, invoice, date string
	var price float64
	cmd := &cobra.Command{
		Use:   "purchase-detail <request-id>",
		Short: "Record purchase details for an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.SetPurchaseDetail(ctx, args[0], actorID(), itemID, domain.PurchaseDetail{
					Price:         price,
					Vendor:        vendor,
					PONumber:      po,
					InvoiceNumber: invoice,
					PurchaseDate:  date,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().StringVar(&itemID, "item", "", "item id")
	cmd.Flags().Float64Var(&price, "price", 0, "unit price")
	cmd.Flags().StringVar(&vendor, "vendor", "", "vendor name")
	cmd.Flags().StringVar(&po, "po", "", "purchase order number")
	cmd.Flags().StringVar(&invoice, "invoice", "", "invoice number")
	cmd.Flags().StringVar(&date, "date", "", "purchase date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

func registerAssetsCmd() *cobra.Command {
	var itemID string
	var count int
	var serials []string
	cmd := &cobra.Command{
		Use:   "register <request-id>",
		Short: "Register arrived units into inventory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.RegisterAssets(ctx, args[0], actorID(), engine.RegisterInput{
					ItemID:  itemID,
					Count:   count,
					Serials: serials,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().StringVar(&itemID, "item", "", "item id")
	cmd.Flags().IntVar(&count, "count", 0, "unit count (bulk items)")
	cmd.Flags().StringArrayVar(&serials, "serial", nil, "serial number, one per unit (serialized items)")
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

func handoverCmd() *cobra.Command {
	var recipient string
	var bulk, serialized, reasons []string
	cmd := &cobra.Command{
		Use:   "handover <request-id>",
		Short: "Create a handover document",
		Long: `Bulk items take --bulk item_id:quantity; serialized items take
--serialized item_id:asset_id,asset_id,... with one asset per unit.
A reduced quantity needs --reason item_id:text.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := parseAssignment(bulk, serialized, reasons)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.CreateHandover(ctx, args[0], actorID(), engine.HandoverOptions{
					Recipient: recipient,
					Lines:     lines,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().StringVar(&recipient, "recipient", "", "receiving user")
	cmd.Flags().StringArrayVar(&bulk, "bulk", nil, "bulk line item_id:quantity")
	cmd.Flags().StringArrayVar(&serialized, "serialized", nil, "serialized line item_id:asset_id,asset_id,...")
	cmd.Flags().StringArrayVar(&reasons, "reason", nil, "reduction reason item_id:text")
	_ = cmd.MarkFlagRequired("recipient")
	return cmd
}

func parseAssignment(bulk, serialized, reasons []string) ([]lifecycle.AssignmentLine, error) {
	reasonFor := map[string]string{}
	for _, spec := range reasons {
		parts := strings.SplitN(spec, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("reason %q: want item_id:text", spec)
		}
		reasonFor[parts[0]] = parts[1]
	}
	var out []lifecycle.AssignmentLine
	for _, spec := range bulk {
		parts := strings.SplitN(spec, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("bulk line %q: want item_id:quantity", spec)
		}
		qty, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("bulk line %q: bad quantity: %w", spec, err)
		}
		out = append(out, lifecycle.AssignmentLine{ItemID: parts[0], Quantity: qty, Reason: reasonFor[parts[0]]})
	}
	for _, spec := range serialized {
		parts := strings.SplitN(spec, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("serialized line %q: want item_id:asset_id,...", spec)
		}
		ids := strings.Split(parts[1], ",")
		out = append(out, lifecycle.AssignmentLine{
			ItemID:   parts[0],
			Quantity: len(ids),
			AssetIDs: ids,
			Reason:   reasonFor[parts[0]],
		})
	}
	return out, nil
}

// --- user commands ---

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users and permissions"}
	user.AddCommand(userCreateCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userShowCmd())
	user.AddCommand(userSetRoleCmd())
	user.AddCommand(userSetPermissionsCmd())
	user.AddCommand(userAPIKeyCmd())
	user.AddCommand(userWhoamiCmd())
	return user
}

func userCreateCmd() *cobra.Command {
	var id, name, role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user with role defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateUser(ctx, actorID(), id, name, domain.Role(role))
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleStaff), "role")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				users, err := e.Repo.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Permissions"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Role, len(u.Permissions)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func userShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a user with effective permissions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.Repo.GetUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"user":                  u,
					"effective_permissions": e.Graph.EffectivePermissions(u).Slice(),
				})
			})
		},
	}
	return cmd
}

func userSetRoleCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "set-role <user-id>",
		Short: "Change a user's role, resetting to the role defaults",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.SetRole(ctx, actorID(), args[0], domain.Role(role))
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "new role")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func userSetPermissionsCmd() *cobra.Command {
	var perms []string
	cmd := &cobra.Command{
		Use:   "set-permissions <user-id>",
		Short: "Replace a user's stored permissions (sanitized against the role policy)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caps := make([]domain.Capability, 0, len(perms))
			for _, p := range perms {
				caps = append(caps, domain.Capability(p))
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.UpdatePermissions(ctx, actorID(), args[0], caps)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringArrayVar(&perms, "perm", nil, "capability to grant")
	return cmd
}

func userAPIKeyCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "api-key <user-id>",
		Short: "Issue an API key (plaintext shown once)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				plaintext, key, err := e.IssueAPIKey(ctx, actorID(), args[0], name)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"key":     plaintext,
					"id":      key.ID,
					"user_id": key.UserID,
					"name":    key.Name,
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func userWhoamiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the acting user's role and effective permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.Repo.GetUser(ctx, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"user":                  u,
					"effective_permissions": e.Graph.EffectivePermissions(u).Slice(),
				})
			})
		},
	}
	return cmd
}

// --- asset commands ---

func assetCmd() *cobra.Command {
	asset := &cobra.Command{Use: "asset", Short: "Manage inventory"}
	asset.AddCommand(assetAddCmd())
	asset.AddCommand(assetListCmd())
	return asset
}

func assetAddCmd() *cobra.Command {
	var name, brand, tracking, serial string
	var quantity int
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register inventory stock",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.AddAsset(ctx, actorID(), engine.AssetInput{
					Name:     name,
					Brand:    brand,
					Tracking: domain.TrackingMode(tracking),
					Serial:   serial,
					Quantity: quantity,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "asset name")
	cmd.Flags().StringVar(&brand, "brand", "", "brand")
	cmd.Flags().StringVar(&tracking, "tracking", string(domain.TrackSerialized), "bulk or serialized")
	cmd.Flags().StringVar(&serial, "serial", "", "serial number (serialized)")
	cmd.Flags().IntVar(&quantity, "quantity", 1, "pool size (bulk)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func assetListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				assets, err := e.Repo.ListAssets(ctx, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(assets)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Brand", "Tracking", "Serial", "Qty", "Status", "Request"})
				for _, a := range assets {
					tw.AppendRow(table.Row{a.ID, a.Name, a.Brand, a.Tracking, a.Serial, a.Quantity, a.Status, a.RequestID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

// --- capability commands ---

func capabilityCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "capability", Short: "Inspect the capability graph"}
	cmd.AddCommand(capabilityListCmd())
	return cmd
}

func capabilityListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List capabilities with their toggle closures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				type node struct {
					Capability domain.Capability   `json:"capability"`
					ToggleOn   []domain.Capability `json:"toggle_on"`
					ToggleOff  []domain.Capability `json:"toggle_off"`
				}
				var nodes []node
				for _, c := range e.Graph.Capabilities() {
					on, err := e.Graph.ToggleOn(c)
					if err != nil {
						return err
					}
					off, err := e.Graph.ToggleOff(c)
					if err != nil {
						return err
					}
					nodes = append(nodes, node{Capability: c, ToggleOn: on.Slice(), ToggleOff: off.Slice()})
				}
				if viper.GetBool("json") {
					return printJSON(nodes)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Capability", "Toggle on selects", "Toggle off deselects"})
				for _, n := range nodes {
					tw.AppendRow(table.Row{n.Capability, joinCaps(n.ToggleOn), joinCaps(n.ToggleOff)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func joinCaps(caps []domain.Capability) string {
	parts := make([]string, 0, len(caps))
	for _, c := range caps {
		parts = append(parts, string(c))
	}
	return strings.Join(parts, ", ")
}

// --- config commands ---

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default capability configuration to assetline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

// --- log commands ---

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Activity log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var actType, requestID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail activity entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				acts, err := e.Repo.LatestActivities(ctx, n, requestID, actType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(acts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Request", "Actor", "Payload"})
				for _, a := range acts {
					tw.AppendRow(table.Row{a.TS, a.Type, a.RequestID, a.ActorID, a.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringVar(&actType, "type", "", "activity type filter")
	cmd.Flags().StringVar(&requestID, "request", "", "request id filter")
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := app.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer app.Close(eng)
			if _, err := app.EnsureActor(cmd.Context(), eng, viper.GetString("user")); err != nil {
				return err
			}
			authCfg := server.AuthConfig{
				JWTSecret:             os.Getenv("ASSETLINE_JWT_SECRET"),
				AllowLegacyUserHeader: allowLegacy,
			}
			if authCfg.JWTSecret == "" && !allowLegacy {
				return fmt.Errorf("ASSETLINE_JWT_SECRET is required for bearer auth (or pass --allow-legacy-header for local use)")
			}
			handler, err := server.New(server.Config{Engine: eng, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Assetline API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-header", false, "accept X-User-Id without auth")
	return cmd
}

// --- output helpers ---

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
