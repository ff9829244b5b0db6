package circuitbreaker

import (
	"context"
	"fmt"
	"time"

	"github.com/afex/hystrix-go/hystrix"
)

type FallbackFunc func(ctx context.Context) ([]any, error)

// FunctorCallStatus records the outcome of one functor of a command.
type FunctorCallStatus struct {
	name      string
	timestamp time.Time
	err       error
}

func (s FunctorCallStatus) Name() string {
	return s.name
}

func (s FunctorCallStatus) Timestamp() time.Time {
	return s.timestamp
}

func (s FunctorCallStatus) Err() error {
	return s.err
}

type CommandResult struct {
	res                 []any
	err                 error
	cancelled           bool
	provider            string
	functorCallStatuses []FunctorCallStatus
}

func (cr CommandResult) Result() []any {
	return cr.res
}

func (cr CommandResult) Error() error {
	return cr.err
}

func (cr CommandResult) Cancelled() bool {
	return cr.cancelled
}

func (cr CommandResult) FunctorCallStatuses() []FunctorCallStatus {
	return cr.functorCallStatuses
}

// Provider is the circuit that produced the result.
func (cr CommandResult) Provider() string {
	return cr.provider
}

type Command struct {
	ctx      context.Context
	functors []*Functor
	cancel   bool
}

func NewCommand(ctx context.Context, functors []*Functor) *Command {
	return &Command{
		ctx:      ctx,
		functors: functors,
	}
}

func (cmd *Command) Add(ftor *Functor) {
	cmd.functors = append(cmd.functors, ftor)
}

func (cmd *Command) IsEmpty() bool {
	return len(cmd.functors) == 0
}

// Cancel stops the command from trying the remaining functors.
func (cmd *Command) Cancel() {
	cmd.cancel = true
}

type Config struct {
	Timeout                int `json:"Timeout"`
	MaxConcurrentRequests  int `json:"MaxConcurrentRequests"`
	RequestVolumeThreshold int `json:"RequestVolumeThreshold"`
	SleepWindow            int `json:"SleepWindow"`
	ErrorPercentThreshold  int `json:"ErrorPercentThreshold"`
}

func DefaultConfig() Config {
	return Config{
		Timeout:                20000,
		MaxConcurrentRequests:  100,
		RequestVolumeThreshold: 20,
		SleepWindow:            5000,
		ErrorPercentThreshold:  50,
	}
}

type CircuitBreaker struct {
	config Config
}

func NewCircuitBreaker(config Config) *CircuitBreaker {
	return &CircuitBreaker{
		config: config,
	}
}

type Functor struct {
	exec        FallbackFunc
	circuitName string
}

func NewFunctor(exec FallbackFunc, circuitName string) *Functor {
	return &Functor{
		exec:        exec,
		circuitName: circuitName,
	}
}

// Executes the functors in order until one succeeds. Every functor but
// the last runs in its own circuit; the last one always runs directly so a
// request is never refused outright. Errors of failed functors are
// accumulated.
// This is a blocking function.
func (cb *CircuitBreaker) Execute(cmd *Command) CommandResult {
	if cmd == nil || cmd.IsEmpty() {
		return CommandResult{err: fmt.Errorf("command is nil or empty")}
	}

	var result CommandResult
	ctx := cmd.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	for i, f := range cmd.functors {
		if cmd.cancel {
			break
		}

		var err error
		if i == len(cmd.functors)-1 {
			var res []any
			res, err = f.exec(ctx)
			if err == nil {
				result.res = res
				result.err = nil
				result.provider = f.circuitName
			}
		} else {
			if hystrix.GetCircuitSettings()[f.circuitName] == nil {
				hystrix.ConfigureCommand(f.circuitName, hystrix.CommandConfig{
					Timeout:                cb.config.Timeout,
					MaxConcurrentRequests:  cb.config.MaxConcurrentRequests,
					RequestVolumeThreshold: cb.config.RequestVolumeThreshold,
					SleepWindow:            cb.config.SleepWindow,
					ErrorPercentThreshold:  cb.config.ErrorPercentThreshold,
				})
			}

			var res []any
			err = hystrix.DoC(ctx, f.circuitName, func(ctx context.Context) error {
				out, err := f.exec(ctx)
				res = out
				return err
			}, nil)
			// Write to result only if success
			if err == nil {
				result.res = res
				result.err = nil
				result.provider = f.circuitName
			}
		}

		result.functorCallStatuses = append(result.functorCallStatuses, FunctorCallStatus{
			name:      f.circuitName,
			timestamp: time.Now(),
			err:       err,
		})

		if err == nil {
			break
		}

		// Accumulate errors
		if result.err != nil {
			result.err = fmt.Errorf("%w, %s.error: %w", result.err, f.circuitName, err)
		} else {
			result.err = fmt.Errorf("%s.error: %w", f.circuitName, err)
		}
		// Lets abuse every provider with the same amount of MaxConcurrentRequests,
		// keep iterating even in case of ErrMaxConcurrency error
	}

	result.cancelled = cmd.cancel
	return result
}

func CircuitExists(circuitName string) bool {
	_, ok := hystrix.GetCircuitSettings()[circuitName]
	return ok
}

func IsCircuitOpen(circuitName string) bool {
	circuit, exists, _ := hystrix.GetCircuit(circuitName)
	return exists && circuit.IsOpen()
}
