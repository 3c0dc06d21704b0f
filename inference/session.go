// Package inference - ONNX Runtime sessions producing raw detector output.
package inference

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

var (
	envOnce sync.Once
	envErr  error
)

// initializeEnvironment loads the native ONNX Runtime library once per process.
func initializeEnvironment(libPath string) error {
	envOnce.Do(func() {
		if _, err := os.Stat(libPath); err != nil {
			envErr = errors.Wrapf(err, "ONNX Runtime library not found at %s", libPath)
			return
		}
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = errors.Wrap(err, "error initializing ORT environment")
		}
	})
	return envErr
}

// SessionConfig configures an ONNX Runtime session.
type SessionConfig struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string `json:"model_path" yaml:"model_path" koanf:"path"`
	// LibraryPath is the ONNX Runtime shared library. Empty uses GetSharedLibPath.
	LibraryPath string `json:"library_path" yaml:"library_path" koanf:"librarypath"`
	// Width and Height are used for dynamic input dimensions.
	Width  int `json:"width" yaml:"width" koanf:"width"`
	Height int `json:"height" yaml:"height" koanf:"height"`
	// IntraOpThreads parallelizes execution within graph nodes. 0 uses the runtime default.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads" koanf:"intraopthreads"`
	// InterOpThreads parallelizes execution across graph nodes. 0 uses the runtime default.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads" koanf:"interopthreads"`
}

// Runner executes a model whose input and output live in preallocated buffers.
type Runner interface {
	// Input returns the buffer the next Run reads from.
	Input() []float32
	// Output returns the buffer the last Run wrote to.
	Output() []float32
	// InputShape returns the model input shape, [batch, channels, height, width].
	InputShape() []int64
	// OutputShape returns the model output shape.
	OutputShape() []int64
	// Run executes the model once.
	Run() error
	// Close releases native resources.
	Close() error
}

// Session represents a model session from the onnxruntime with a single
// float32 input and output tensor.
type Session struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// resolveShape replaces dynamic (negative) dimensions. The batch dimension
// becomes 1; for a 4-D image input the spatial dimensions take height and width.
func resolveShape(dims ort.Shape, width, height int) (ort.Shape, error) {
	shape := dims.Clone()
	for i, d := range shape {
		if d > 0 {
			continue
		}
		switch {
		case i == 0:
			shape[i] = 1
		case len(shape) == 4 && i == 2 && height > 0:
			shape[i] = int64(height)
		case len(shape) == 4 && i == 3 && width > 0:
			shape[i] = int64(width)
		default:
			return nil, errors.Errorf("cannot resolve dynamic dimension %d of shape %v", i, dims)
		}
	}
	return shape, nil
}

// NewSession creates a new ONNX Runtime session.
//
// The model must have exactly one input and one output. Their names and
// shapes are read from the model file and the tensors are preallocated.
//
// Arguments:
//   - cfg: The session configuration.
//   - logger: Receives session diagnostics. Nil disables logging.
//
// Returns:
//   - *Session: The session.
//   - error: An error if the runtime or the model cannot be loaded.
func NewSession(cfg SessionConfig, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	libPath := cfg.LibraryPath
	if libPath == "" {
		libPath = GetSharedLibPath()
	}
	if err := initializeEnvironment(libPath); err != nil {
		return nil, err
	}

	inputInfo, outputInfo, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading model %s", cfg.ModelPath)
	}
	if len(inputInfo) != 1 || len(outputInfo) != 1 {
		return nil, errors.Errorf("model %s has %d inputs and %d outputs, want 1 and 1",
			cfg.ModelPath, len(inputInfo), len(outputInfo))
	}

	inputShape, err := resolveShape(inputInfo[0].Dimensions, cfg.Width, cfg.Height)
	if err != nil {
		return nil, errors.Wrap(err, "input")
	}
	outputShape, err := resolveShape(outputInfo[0].Dimensions, cfg.Width, cfg.Height)
	if err != nil {
		return nil, errors.Wrap(err, "output")
	}

	input, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session options")
	}
	defer options.Destroy()

	if cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			input.Destroy()
			output.Destroy()
			return nil, errors.Wrap(err, "error setting intra-op threads")
		}
	}
	if cfg.InterOpThreads > 0 {
		if err := options.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
			input.Destroy()
			output.Destroy()
			return nil, errors.Wrap(err, "error setting inter-op threads")
		}
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{inputInfo[0].Name},
		[]string{outputInfo[0].Name},
		[]ort.Value{input},
		[]ort.Value{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session")
	}

	logger.Info("onnx session created",
		zap.String("model", cfg.ModelPath),
		zap.String("input", inputInfo[0].Name),
		zap.Int64s("input_shape", inputShape),
		zap.String("output", outputInfo[0].Name),
		zap.Int64s("output_shape", outputShape),
	)

	return &Session{session: session, input: input, output: output}, nil
}

// Input implements Runner.
func (s *Session) Input() []float32 { return s.input.GetData() }

// Output implements Runner.
func (s *Session) Output() []float32 { return s.output.GetData() }

// InputShape implements Runner.
func (s *Session) InputShape() []int64 { return s.input.GetShape() }

// OutputShape implements Runner.
func (s *Session) OutputShape() []int64 { return s.output.GetShape() }

// Run implements Runner.
func (s *Session) Run() error {
	if s.session == nil {
		return errors.New("session is closed")
	}
	return errors.Wrap(s.session.Run(), "error running ORT session")
}

// Close releases the resources associated with the Session.
func (s *Session) Close() error {
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	if s.session != nil {
		err := s.session.Destroy()
		s.session = nil
		if err != nil {
			return errors.Wrap(err, "error destroying ORT session")
		}
	}
	return nil
}
