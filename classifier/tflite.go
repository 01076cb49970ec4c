package classifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fltr/logger"
	"fltr/mfcc"

	"github.com/mattn/go-tflite"
	"github.com/mattn/go-tflite/delegates"
	"github.com/mattn/go-tflite/delegates/xnnpack"
	"github.com/rs/zerolog"
)

type TFLiteConfig struct {
	ModelPath string
	Labels    []string
	Threads   int
	// Accelerate tries the XNNPACK delegate first and falls back to the
	// plain CPU kernels when it cannot be applied.
	Accelerate bool
}

type tfliteImpl struct {
	mu       sync.Mutex
	model    *tflite.Model
	options  *tflite.InterpreterOptions
	interp   *tflite.Interpreter
	delegate delegates.Delegater
	labels   []string
	frames   int
	coeffs   int
	log      zerolog.Logger
}

func NewTFLite(cfg *TFLiteConfig) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if len(cfg.Labels) == 0 {
		return nil, ErrNoLabels
	}

	model := tflite.NewModelFromFile(cfg.ModelPath)
	if model == nil {
		return nil, fmt.Errorf("load model %s", cfg.ModelPath)
	}

	t := &tfliteImpl{
		model:  model,
		labels: cfg.Labels,
		log:    logger.WithComponent("classifier").With().Str("backend", "tflite").Logger(),
	}

	if cfg.Accelerate {
		if err := t.build(cfg.Threads, true); err != nil {
			t.log.Warn().Err(err).Msg("accelerated delegate unavailable, falling back to cpu")
			t.release()
		}
	}

	if t.interp == nil {
		if err := t.build(cfg.Threads, false); err != nil {
			t.release()
			model.Delete()
			return nil, err
		}
	}

	if err := t.inspect(); err != nil {
		_ = t.Close()
		return nil, err
	}

	t.log.Info().
		Int("frames", t.frames).
		Int("coefficients", t.coeffs).
		Int("labels", len(t.labels)).
		Bool("accelerated", t.delegate != nil).
		Msg("model and labels loaded")

	return t, nil
}

func (t *tfliteImpl) build(threads int, accelerate bool) error {
	t.options = tflite.NewInterpreterOptions()
	if threads > 0 {
		t.options.SetNumThread(threads)
	}

	if accelerate {
		d := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(threads, 1))})
		if d == nil {
			return fmt.Errorf("create xnnpack delegate")
		}
		t.delegate = d
		t.options.AddDelegate(d)
	}

	t.interp = tflite.NewInterpreter(t.model, t.options)
	if t.interp == nil {
		return fmt.Errorf("create interpreter")
	}

	if status := t.interp.AllocateTensors(); status != tflite.OK {
		return fmt.Errorf("allocate tensors: status %v", status)
	}

	return nil
}

// inspect reads the [1, frames, coefficients] input shape and checks the
// output width against the labels.
func (t *tfliteImpl) inspect() error {
	input := t.interp.GetInputTensor(0)
	if input == nil || input.NumDims() != 3 {
		return fmt.Errorf("%w: want input [1, frames, coefficients]", ErrShapeMismatch)
	}
	if input.Type() != tflite.Float32 {
		return fmt.Errorf("%w: input type %v, want float32", ErrShapeMismatch, input.Type())
	}
	t.frames, t.coeffs = input.Dim(1), input.Dim(2)

	output := t.interp.GetOutputTensor(0)
	if output == nil {
		return fmt.Errorf("%w: model has no output", ErrShapeMismatch)
	}

	dims := make([]int, output.NumDims())
	for i := range dims {
		dims[i] = output.Dim(i)
	}

	return checkOutput(output.Type(), dims, len(t.labels))
}

// checkOutput requires a float32 score tensor with one score per label.
// Quantized outputs are rejected since their scores cannot be read as float32.
func checkOutput(typ tflite.TensorType, dims []int, labels int) error {
	if typ != tflite.Float32 {
		return fmt.Errorf("%w: output type %v, want float32", ErrShapeMismatch, typ)
	}

	width := 1
	for i := 1; i < len(dims); i++ {
		width *= dims[i]
	}
	if len(dims) == 0 || width != labels {
		return fmt.Errorf("%w: output width %d, labels %d", ErrShapeMismatch, width, labels)
	}

	return nil
}

func (t *tfliteImpl) Classify(ctx context.Context, in Input) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.interp == nil {
		return Prediction{}, fmt.Errorf("classifier closed")
	}

	flat := mfcc.Flatten(in.Features, t.frames, t.coeffs)
	copy(t.interp.GetInputTensor(0).Float32s(), flat)

	start := time.Now()
	if status := t.interp.Invoke(); status != tflite.OK {
		return Prediction{}, fmt.Errorf("invoke: status %v", status)
	}
	elapsed := time.Since(start)

	scores := append([]float32(nil), t.interp.GetOutputTensor(0).Float32s()...)

	prediction, err := predict(t.labels, scores, elapsed)
	if err != nil {
		return Prediction{}, err
	}

	t.log.Debug().Dur("elapsed", elapsed).Str("label", prediction.Label).Msg("inference complete")

	return prediction, nil
}

func (t *tfliteImpl) Labels() []string {
	return t.labels
}

func (t *tfliteImpl) release() {
	if t.interp != nil {
		t.interp.Delete()
		t.interp = nil
	}
	if t.options != nil {
		t.options.Delete()
		t.options = nil
	}
	if t.delegate != nil {
		t.delegate.Delete()
		t.delegate = nil
	}
}

func (t *tfliteImpl) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.release()
	if t.model != nil {
		t.model.Delete()
		t.model = nil
	}

	return nil
}
