// paymentctl — утилита оператора: ручная сверка заказа, выставление счёта,
// подпись и классификация тел уведомлений. Читает ту же конфигурацию, что и сервис.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	sharedcfg "example.com/crypto-checkout/pkg/config"
	"example.com/crypto-checkout/pkg/logger"
	"example.com/crypto-checkout/services/payment/internal/app"
	"example.com/crypto-checkout/services/payment/internal/config"
	"example.com/crypto-checkout/services/payment/internal/domain"
	"example.com/crypto-checkout/services/payment/internal/issuer"
	"example.com/crypto-checkout/services/payment/internal/notification"
	"example.com/crypto-checkout/services/payment/internal/reconcile"
)

var Version = "dev"

type reconciler interface {
	Reconcile(ctx context.Context, orderID string) (domain.PaymentOutcome, error)
	ReconcileDetailed(ctx context.Context, orderID, invoiceID string) (*reconcile.Detailed, error)
}

type invoiceIssuer interface {
	CreateInvoice(ctx context.Context, req issuer.Request) (*issuer.Result, error)
}

// services — то, что нужно командам, работающим с процессором.
type services struct {
	Reconciler reconciler
	Issuer     invoiceIssuer
}

type cli struct {
	out     io.Writer
	timeout time.Duration
	load    func() (*services, error)
}

func main() {
	c := &cli{out: os.Stdout, load: loadServices}
	if err := c.rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadServices() (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	core, err := app.NewCore(cfg)
	if err != nil {
		return nil, err
	}
	return &services{Reconciler: core.Engine, Issuer: core.Issuer}, nil
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "paymentctl",
		Short:         "Операции с платежами в криптовалюте",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level, _ := cmd.Flags().GetString("log-level")
			logger.Init(logger.Config{Level: level, Pretty: true, Output: os.Stderr})
		},
	}

	root.PersistentFlags().String("log-level", "warn", "Уровень логирования")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Second, "Таймаут операции")

	root.AddCommand(c.reconcileCmd())
	root.AddCommand(c.createInvoiceCmd())
	root.AddCommand(c.signPayloadCmd())
	root.AddCommand(c.classifyCmd())
	root.SetOut(c.out)

	return root
}

func (c *cli) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ====================================================================
// reconcile
// ====================================================================

func (c *cli) reconcileCmd() *cobra.Command {
	var invoiceID string
	var detailed bool

	cmd := &cobra.Command{
		Use:   "reconcile <order-id>",
		Short: "Сверить статус оплаты заказа с процессором",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.load()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			if !detailed {
				outcome, err := svc.Reconciler.Reconcile(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(c.out, outcome)
				return nil
			}

			res, err := svc.Reconciler.ReconcileDetailed(ctx, args[0], invoiceID)
			if err != nil {
				return err
			}
			return c.printJSON(res)
		},
	}

	cmd.Flags().StringVar(&invoiceID, "invoice-id", "", "Идентификатор счёта процессора")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "Полный исход с уровнем доверия и журналом запросов")

	return cmd
}

// ====================================================================
// create-invoice
// ====================================================================

func (c *cli) createInvoiceCmd() *cobra.Command {
	var (
		amount string
		req    issuer.Request
	)

	cmd := &cobra.Command{
		Use:   "create-invoice",
		Short: "Выставить счёт и получить ссылку на оплату",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("некорректная сумма %q: %w", amount, err)
			}
			req.Amount = d

			svc, err := c.load()
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			res, err := svc.Issuer.CreateInvoice(ctx, req)
			if err != nil {
				return err
			}
			return c.printJSON(res)
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "", "Сумма к оплате")
	cmd.Flags().StringVar(&req.Currency, "currency", "", "Валюта цены (USD, BTC, ...)")
	cmd.Flags().StringVar(&req.OrderID, "order-id", "", "Идентификатор заказа; генерируется, если не задан")
	cmd.Flags().StringVar(&req.Description, "description", "", "Описание заказа")
	cmd.Flags().StringVar(&req.CustomerEmail, "email", "", "Email покупателя")
	cmd.Flags().StringVar(&req.SuccessURL, "success-url", "", "Куда вернуть покупателя после оплаты")
	cmd.Flags().StringVar(&req.FailureURL, "failure-url", "", "Куда вернуть покупателя при ошибке")
	cmd.Flags().StringVar(&req.CancelURL, "cancel-url", "", "Куда вернуть покупателя при отмене")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("currency")

	return cmd
}

// ====================================================================
// sign-payload / classify: офлайн операции над телом уведомления
// ====================================================================

func readFields(path string) (domain.Fields, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", path, err)
	}
	return domain.DecodeFields(data)
}

func (c *cli) signPayloadCmd() *cobra.Command {
	var secret string

	cmd := &cobra.Command{
		Use:   "sign-payload <file>",
		Short: "Подписать тело уведомления HMAC-SHA512 (\"-\" читает stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if secret == "" {
				var wh config.WebhookConfig
				if err := sharedcfg.LoadInto(&wh); err != nil {
					return err
				}
				secret = wh.HMACSecret
			}
			if secret == "" {
				return fmt.Errorf("не задан секрет: --secret или WEBHOOK_HMAC_SECRET")
			}

			fields, err := readFields(args[0])
			if err != nil {
				return err
			}
			sig, err := notification.Sign([]byte(secret), fields)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, sig)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "Секрет HMAC; по умолчанию WEBHOOK_HMAC_SECRET")
	return cmd
}

func (c *cli) classifyCmd() *cobra.Command {
	var tolerance string

	cmd := &cobra.Command{
		Use:   "classify <file>",
		Short: "Классифицировать тело уведомления без обращения к процессору",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			tol, err := decimal.NewFromString(tolerance)
			if err != nil || !tol.IsPositive() {
				return fmt.Errorf("некорректный допуск %q", tolerance)
			}

			fields, err := readFields(args[0])
			if err != nil {
				return err
			}
			classifier := domain.NewClassifier(domain.NewAmountReconciler(tol))
			inv := domain.InvoiceFromFields(fields, classifier)
			outcome := classifier.ClassifyInvoice(inv)

			return c.printJSON(map[string]any{
				"outcome":      outcome,
				"two_state":    outcome.TwoState(),
				"status_label": inv.StatusLabel,
				"recognized":   classifier.Recognizes(inv.StatusLabel),
			})
		},
	}

	cmd.Flags().StringVar(&tolerance, "tolerance", "0.95", "Допуск недоплаты")
	return cmd
}
