package server

import (
	"errors"
	"fmt"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/ValentinKolb/sMX/lib/matrix"
	"github.com/ValentinKolb/sMX/lib/matrix/engine"
	"github.com/ValentinKolb/sMX/lib/matrix/storage"
	"github.com/ValentinKolb/sMX/rpc/common"
	"github.com/ValentinKolb/sMX/rpc/serializer"
	"github.com/ValentinKolb/sMX/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverMatrix is a matrix hosted by the RPC server together with the
// adapter that handles requests for it
type serverMatrix struct {
	Matrix  matrix.IMatrix
	Adapter IRPCServerAdapter
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *rpcServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &rpcServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		matrices:   xsync.NewMapOf[uint64, serverMatrix](),
	}
}

type rpcServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	matrices   *xsync.MapOf[uint64, serverMatrix]

	closeOnce sync.Once
	closeErr  error
}

// AddMatrix hosts m under the given id. The server takes ownership of m
// and closes it when the server is closed.
func (s *rpcServer) AddMatrix(id uint64, m matrix.IMatrix) error {
	if _, loaded := s.matrices.LoadOrStore(id, serverMatrix{Matrix: m, Adapter: NewMatrixServerAdapter()}); loaded {
		return fmt.Errorf("matrix %d is already hosted", id)
	}
	return nil
}

// Serve starts the RPC server
// This function opens all configured matrices and starts the transport layer.
// It blocks until Close is called.
func (s *rpcServer) Serve() error {
	if err := s.init(); err != nil {
		_ = s.closeMatrices()
		return err
	}

	if err := s.transport.Listen(s.config); err != nil {
		_ = s.Close()
		return err
	}
	return nil
}

// Close stops the transport and closes all hosted matrices. Modified rows of
// file backed matrices are written before Close returns.
func (s *rpcServer) Close() error {
	s.closeOnce.Do(func() {
		Logger.Infof("shutting down RPC server")
		s.closeErr = errors.Join(s.transport.Close(), s.closeMatrices())
	})
	return s.closeErr
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *rpcServer) init() error {
	if s.config.LogLevel != "" {
		if err := common.InitLoggers(s.config.LogLevel); err != nil {
			return err
		}
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof("%s", s.config.String())

	for _, cfg := range s.config.Matrices {
		codec, err := storage.ParseCodec(cfg.Codec)
		if err != nil {
			return fmt.Errorf("matrix %d: %w", cfg.ID, err)
		}

		opts := engine.DefaultOptions()
		opts.Path = cfg.Path
		opts.Codec = codec
		if cfg.CacheSize != 0 {
			opts.CacheSize = cfg.CacheSize
		}

		m, err := engine.Open(opts)
		if err != nil {
			return fmt.Errorf("matrix %d: %w", cfg.ID, err)
		}
		if err := s.AddMatrix(cfg.ID, m); err != nil {
			_ = m.Close()
			return err
		}
		Logger.Infof("hosting matrix %d (%s)", cfg.ID, cfg)
	}

	s.registerTransportHandler()
	return nil
}

func (s *rpcServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(matrixID uint64, req []byte) []byte {
		var msg common.Message
		var respMsg *common.Message

		// Get the addressed matrix
		hosted, ok := s.matrices.Load(matrixID)

		if !ok {
			respMsg = common.NewErrorResponse(fmt.Sprintf("matrix %d not found", matrixID))
		} else if err := s.serializer.Deserialize(req, &msg); err != nil {
			respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
		} else {
			// Let the adapter handle the request
			respMsg = hosted.Adapter.Handle(&msg, hosted.Matrix)
		}

		val, err := s.serializer.Serialize(*respMsg)
		if err != nil {
			Logger.Errorf("failed to serialize response: %v", err)
			val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
		}
		return val
	})
}

// closeMatrices closes every hosted matrix and removes it from the server
func (s *rpcServer) closeMatrices() error {
	var errs []error
	s.matrices.Range(func(id uint64, hosted serverMatrix) bool {
		if err := hosted.Matrix.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing matrix %d: %w", id, err))
		}
		s.matrices.Delete(id)
		return true
	})
	return errors.Join(errs...)
}
