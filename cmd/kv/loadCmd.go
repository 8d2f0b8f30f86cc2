package kv

import (
	"context"
	"encoding/csv"
	"fmt"
	"github.com/ValentinKolb/kvgate/cmd/util"
	"github.com/ValentinKolb/kvgate/lib/kvservice"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	loadCmd = &cobra.Command{
		Use:   "load",
		Short: "Load generator for kvgate servers",
		Long: `Sends concurrent store and retrieve requests and reports latency percentiles,
throughput and the outcome of every request. Running it with more workers than the
server admits makes the effect of the admission policy visible: latencies grow
while the request rate stays bounded.`,
		PreRunE: processLoadConfig,
		RunE:    runLoad,
	}
	loadConf = loadConfig{}
)

// loadConfig parametrizes a load run
type loadConfig struct {
	Workers       int
	Requests      int
	Keys          int
	RetrieveRatio float64
	ValueSize     int
	KeyPrefix     string
}

func init() {
	key := "workers"
	loadCmd.Flags().Int(key, 20, util.WrapString("Number of concurrent workers sending requests"))
	key = "requests"
	loadCmd.Flags().Int(key, 1000, util.WrapString("Total number of requests to send"))
	key = "keys"
	loadCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use, stores of a key beyond the first report already_exists"))
	key = "retrieve-ratio"
	loadCmd.Flags().Float64(key, 0.5, util.WrapString("Fraction of requests that are retrieves (0..1)"))
	key = "value-size"
	loadCmd.Flags().Int(key, 16, util.WrapString("Size of the stored values in bytes"))
	key = "key-prefix"
	loadCmd.Flags().String(key, "", util.WrapString("Prefix of the generated keys, defaults to a prefix unique to the run"))
	key = "csv"
	loadCmd.Flags().String(key, "", util.WrapString("Optional path to save the results as CSV"))
}

func processLoadConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	loadConf = loadConfig{
		Workers:       viper.GetInt("workers"),
		Requests:      viper.GetInt("requests"),
		Keys:          viper.GetInt("keys"),
		RetrieveRatio: viper.GetFloat64("retrieve-ratio"),
		ValueSize:     viper.GetInt("value-size"),
		KeyPrefix:     viper.GetString("key-prefix"),
	}
	if loadConf.KeyPrefix == "" {
		loadConf.KeyPrefix = fmt.Sprintf("load-%d", time.Now().UnixNano())
	}

	return loadConf.validate()
}

func (c loadConfig) validate() error {
	switch {
	case c.Workers < 1:
		return fmt.Errorf("workers must be at least 1")
	case c.Requests < 1:
		return fmt.Errorf("requests must be at least 1")
	case c.Keys < 1:
		return fmt.Errorf("keys must be at least 1")
	case c.RetrieveRatio < 0 || c.RetrieveRatio > 1:
		return fmt.Errorf("retrieve-ratio must be between 0 and 1")
	case c.ValueSize < 0:
		return fmt.Errorf("value-size must not be negative")
	}
	return nil
}

func runLoad(cmd *cobra.Command, _ []string) error {
	fmt.Println("Load generator for kvgate servers")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Workers: %d, Requests: %d, Keys: %d, Retrieve ratio: %.2f\n",
		loadConf.Workers, loadConf.Requests, loadConf.Keys, loadConf.RetrieveRatio)
	fmt.Println()

	fmt.Println("starting load...")
	report := generateLoad(cmd.Context(), rpcKV, loadConf)
	report.print()

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := report.writeCSV(csvPath); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Load Generation
// --------------------------------------------------------------------------

const (
	opStore    = "store"
	opRetrieve = "retrieve"
)

// loadReport holds the metrics of a load run, one timer per operation and
// one counter per operation and outcome code
type loadReport struct {
	registry metrics.Registry
	elapsed  time.Duration
}

func timerName(op string) string         { return "latency." + op }
func counterName(op, code string) string { return "outcome." + op + "." + code }

// generateLoad sends config.Requests requests from config.Workers goroutines
func generateLoad(ctx context.Context, kv kvservice.IKeyValue, config loadConfig) *loadReport {
	report := &loadReport{registry: metrics.NewRegistry()}
	value := strings.Repeat("x", config.ValueSize)

	var next atomic.Int64
	var wg sync.WaitGroup
	start := time.Now()

	for w := 0; w < config.Workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))

			for {
				i := next.Add(1) - 1
				if i >= int64(config.Requests) || ctx.Err() != nil {
					return
				}
				key := fmt.Sprintf("%s-%d", config.KeyPrefix, rnd.Intn(config.Keys))

				op := opStore
				if rnd.Float64() < config.RetrieveRatio {
					op = opRetrieve
				}

				reqStart := time.Now()
				var err error
				if op == opStore {
					err = kv.Store(ctx, key, value)
				} else {
					_, err = kv.Retrieve(ctx, key)
				}

				metrics.GetOrRegisterTimer(timerName(op), report.registry).UpdateSince(reqStart)
				metrics.GetOrRegisterCounter(counterName(op, kvservice.CodeOf(err).String()), report.registry).Inc(1)
			}
		}(time.Now().UnixNano() + int64(w))
	}

	wg.Wait()
	report.elapsed = time.Since(start)
	return report
}

// count returns the number of requests of op with the given outcome
func (r *loadReport) count(op string, code kvservice.Code) int64 {
	if c, ok := r.registry.Get(counterName(op, code.String())).(metrics.Counter); ok {
		return c.Count()
	}
	return 0
}

// total returns the number of requests of op
func (r *loadReport) total(op string) int64 {
	if t, ok := r.registry.Get(timerName(op)).(metrics.Timer); ok {
		return t.Count()
	}
	return 0
}

// outcomes returns the sorted counter names of the report
func (r *loadReport) outcomes() []string {
	names := make([]string, 0)
	r.registry.Each(func(name string, m interface{}) {
		if _, ok := m.(metrics.Counter); ok {
			names = append(names, name)
		}
	})
	sort.Strings(names)
	return names
}

var percentiles = []float64{0.5, 0.95, 0.99}

// print prints the latency and outcome tables
func (r *loadReport) print() {
	fmt.Printf("\nfinished in %s\n\n", r.elapsed.Round(time.Millisecond))

	fmt.Printf("%-10s%10s%12s%12s%12s%12s%12s%12s\n", "op", "count", "mean", "p50", "p95", "p99", "max", "req/s")
	for _, op := range []string{opStore, opRetrieve} {
		t, ok := r.registry.Get(timerName(op)).(metrics.Timer)
		if !ok {
			fmt.Printf("%-10s%10s\n", op, "-")
			continue
		}
		ps := t.Percentiles(percentiles)
		fmt.Printf("%-10s%10d%12s%12s%12s%12s%12s%12.1f\n", op, t.Count(),
			duration(t.Mean()), duration(ps[0]), duration(ps[1]), duration(ps[2]), duration(float64(t.Max())),
			float64(t.Count())/r.elapsed.Seconds())
	}

	fmt.Println()
	fmt.Printf("%-40s%10s\n", "outcome", "count")
	for _, name := range r.outcomes() {
		c := r.registry.Get(name).(metrics.Counter)
		fmt.Printf("%-40s%10d\n", strings.TrimPrefix(name, "outcome."), c.Count())
	}
}

func duration(ns float64) string {
	return time.Duration(ns).Round(time.Microsecond).String()
}

// writeCSV writes one row per operation and outcome
func (r *loadReport) writeCSV(csvPath string) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Op", "Outcome", "Count", "MeanNs", "P50Ns", "P95Ns", "P99Ns", "MaxNs", "ElapsedMs"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, name := range r.outcomes() {
		parts := strings.SplitN(strings.TrimPrefix(name, "outcome."), ".", 2)
		if len(parts) != 2 {
			continue
		}
		op, outcome := parts[0], parts[1]
		count := r.registry.Get(name).(metrics.Counter).Count()

		row := []string{op, outcome, strconv.FormatInt(count, 10), "", "", "", "", "", strconv.FormatInt(r.elapsed.Milliseconds(), 10)}
		if t, ok := r.registry.Get(timerName(op)).(metrics.Timer); ok {
			ps := t.Percentiles(percentiles)
			row[3] = fmt.Sprintf("%.0f", t.Mean())
			row[4] = fmt.Sprintf("%.0f", ps[0])
			row[5] = fmt.Sprintf("%.0f", ps[1])
			row[6] = fmt.Sprintf("%.0f", ps[2])
			row[7] = strconv.FormatInt(t.Max(), 10)
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for %s: %v", name, err)
		}
	}

	return nil
}
