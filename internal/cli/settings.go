package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewSettingsCmd создаёт группу команд для настроек выполнения.
func NewSettingsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage execution settings",
	}

	cmd.AddCommand(
		newSettingsShowCmd(clientFn, outputFn),
		newSettingsSetCmd(clientFn, outputFn),
	)

	return cmd
}

var settingsHeaders = []string{"BATCH", "CONCURRENCY", "RETRY_JOBS", "RETRY_DELAY_SEC", "PARALLELISM", "TRACKING", "DAILY_CAP", "WEBHOOK_INPROC"}

func settingsRow(s *SettingsResponse) []string {
	return []string{
		strconv.Itoa(s.FetchBatchSizePerProcess),
		strconv.Itoa(s.MaxConcurrentProcesses),
		strconv.FormatBool(s.RetryFailedJobs),
		strconv.Itoa(s.DefaultRetryDelaySec),
		strconv.FormatBool(s.EnableFlowParallelism),
		strconv.FormatBool(s.EnableTracking),
		strconv.Itoa(s.MaxDailyEmailsPerCustomer),
		strconv.FormatBool(s.ProcessWebhookInProcess),
	}
}

func newSettingsShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current execution settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			settings, err := client.GetSettings()
			if err != nil {
				return err
			}

			out.Print(settingsHeaders, [][]string{settingsRow(settings)}, settings)
			return nil
		},
	}
}

func newSettingsSetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var batch, concurrency, retryDelay, dailyCap int
	var retryJobs, parallelism, tracking, webhookInProc bool

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update execution settings (unset flags keep current values)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			// Читаем текущие настройки, перекрываем только изменённые флаги
			settings, err := client.GetSettings()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("batch-size") {
				settings.FetchBatchSizePerProcess = batch
			}
			if cmd.Flags().Changed("concurrency") {
				settings.MaxConcurrentProcesses = concurrency
			}
			if cmd.Flags().Changed("retry-jobs") {
				settings.RetryFailedJobs = retryJobs
			}
			if cmd.Flags().Changed("retry-delay-sec") {
				settings.DefaultRetryDelaySec = retryDelay
			}
			if cmd.Flags().Changed("parallelism") {
				settings.EnableFlowParallelism = parallelism
			}
			if cmd.Flags().Changed("tracking") {
				settings.EnableTracking = tracking
			}
			if cmd.Flags().Changed("daily-cap") {
				settings.MaxDailyEmailsPerCustomer = dailyCap
			}
			if cmd.Flags().Changed("webhook-in-process") {
				settings.ProcessWebhookInProcess = webhookInProc
			}

			saved, err := client.UpdateSettings(*settings)
			if err != nil {
				return err
			}

			out.Success("Settings updated (takes effect next engine cycle)")
			out.Print(settingsHeaders, [][]string{settingsRow(saved)}, saved)
			return nil
		},
	}

	cmd.Flags().IntVar(&batch, "batch-size", 0, "Contacts fetched per cycle")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Max concurrent processes")
	cmd.Flags().BoolVar(&retryJobs, "retry-jobs", false, "Retry failed delivery jobs")
	cmd.Flags().IntVar(&retryDelay, "retry-delay-sec", 0, "Default step retry delay, seconds")
	cmd.Flags().BoolVar(&parallelism, "parallelism", false, "Process batch contacts in parallel")
	cmd.Flags().BoolVar(&tracking, "tracking", false, "Append tracking pixel to emails")
	cmd.Flags().IntVar(&dailyCap, "daily-cap", 0, "Max daily emails per customer")
	cmd.Flags().BoolVar(&webhookInProc, "webhook-in-process", false, "Call webhooks synchronously in engine")

	return cmd
}

// NewStatsCmd создаёт команду глобальной статистики.
func NewStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show global statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			stats, err := client.GetGlobalStats()
			if err != nil {
				return err
			}

			headers := []string{"SUBSCRIBERS", "EMAILS_SENT", "WEBHOOKS_SENT"}
			rows := [][]string{{
				strconv.FormatInt(stats.TotalSubscribers, 10),
				strconv.FormatInt(stats.TotalEmailsSent, 10),
				strconv.FormatInt(stats.TotalWebhooksSent, 10),
			}}

			out.Print(headers, rows, stats)
			return nil
		},
	}
}

// NewDeliveryCmd создаёт группу команд журнала доставки.
func NewDeliveryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delivery",
		Short: "Inspect the delivery log",
	}

	cmd.AddCommand(
		newDeliveryListCmd(clientFn, outputFn),
		newDeliveryShowCmd(clientFn, outputFn),
	)

	return cmd
}

var deliveryHeaders = []string{"ID", "KIND", "STATUS", "ATTEMPTS", "ERROR", "CREATED"}

func deliveryRow(j *DeliveryJobResponse) []string {
	attempts := strconv.Itoa(j.Attempts) + "/" + strconv.Itoa(j.MaxAttempts)
	return []string{j.ID, j.Kind, j.Status, attempts, j.LastError, j.CreatedAt}
}

func newDeliveryListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List delivery jobs by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			jobs, err := client.ListDeliveries(status, limit)
			if err != nil {
				return err
			}

			rows := make([][]string, len(jobs))
			for i := range jobs {
				rows[i] = deliveryRow(&jobs[i])
			}

			out.Print(deliveryHeaders, rows, jobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Job status: pending, processing, sent, failed, bounced (required)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max rows")
	cmd.MarkFlagRequired("status")

	return cmd
}

func newDeliveryShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show delivery job details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			job, err := client.GetDelivery(args[0])
			if err != nil {
				return err
			}

			out.Print(deliveryHeaders, [][]string{deliveryRow(job)}, job)
			return nil
		},
	}
}
