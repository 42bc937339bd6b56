package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/go-weft/weft"
	"github.com/go-weft/weft/datasource/memory"
	werrors "github.com/go-weft/weft/errors"
	"github.com/go-weft/weft/internal/engine"
	"github.com/stretchr/testify/require"
)

func createTestSource(t *testing.T, numRows int, partitionSize int) *memory.DataSource {
	schema := weft.CreateSchema()
	require.Nil(t, schema.CreateColumn("id", weft.Int64ColumnType))
	rows := make([][]interface{}, numRows)
	for i := 0; i < numRows; i++ {
		rows[i] = []interface{}{int64(i)}
	}
	src, err := memory.CreateDataSource("seq", schema, rows, partitionSize)
	require.Nil(t, err)
	return src
}

// startTestWorkers brings up n in-process workers serving the given DataFrame
// on loopback ports, returning their addresses and a teardown func
func startTestWorkers(t *testing.T, df *weft.DataFrame, n int) ([]string, func()) {
	var nodes []Node
	var addrs []string
	for i := 0; i < n; i++ {
		node, err := CreateWorker(&NodeOptions{
			Host: "127.0.0.1",
			Port: 0,
			CPUs: 2,
		})
		require.Nil(t, err)
		require.Nil(t, node.Start(df))
		require.NotEmpty(t, node.Addr())
		nodes = append(nodes, node)
		addrs = append(addrs, node.Addr())
	}
	return addrs, func() {
		for _, node := range nodes {
			require.Nil(t, node.GracefulStop())
		}
	}
}

func TestBackendDescribe(t *testing.T) {
	df := weft.Read(createTestSource(t, 10, 5))
	addrs, teardown := startTestWorkers(t, df, 2)
	defer teardown()
	backend, err := CreateBackend(&BackendOptions{WorkerAddrs: addrs, RPCTimeout: 5 * time.Second})
	require.Nil(t, err)
	defer backend.Stop()
	require.Equal(t, weft.ClusterBackend, backend.Kind())
	workers := backend.Describe()
	require.Len(t, workers, 2)
	for _, w := range workers {
		require.NotEmpty(t, w.ID)
		require.Equal(t, 2, w.CPUs)
		require.Equal(t, 0, w.GPUs)
	}
	require.NotEqual(t, workers[0].ID, workers[1].ID)
}

func TestBackendRequiresWorkers(t *testing.T) {
	_, err := CreateBackend(&BackendOptions{})
	require.IsType(t, werrors.ConfigError{}, err)
}

func TestClusterExecutionMatchesLocal(t *testing.T) {
	require.Nil(t, weft.RegisterUDF("cluster_test_double", func(v interface{}) (interface{}, error) {
		return v.(int64) * 2, nil
	}, weft.Int64ColumnType, weft.ResourceRequest{}))
	src := createTestSource(t, 50, 8)
	df := weft.Read(src).WithColumn("doubled", "cluster_test_double", "id").Repartition(3)
	plan, err := df.Plan()
	require.Nil(t, err)

	local, err := engine.CreateLocalBackend(2, 0)
	require.Nil(t, err)
	localResult, err := engine.Run(context.Background(), plan, local, &engine.RunConfig{}, engine.CreateRunStatistics())
	require.Nil(t, err)

	addrs, teardown := startTestWorkers(t, df, 2)
	defer teardown()
	remote, err := CreateBackend(&BackendOptions{WorkerAddrs: addrs, RPCTimeout: 5 * time.Second})
	require.Nil(t, err)
	defer remote.Stop()
	remoteResult, err := engine.Run(context.Background(), plan, remote, &engine.RunConfig{}, engine.CreateRunStatistics())
	require.Nil(t, err)

	require.Equal(t, localResult.NumPartitions(), remoteResult.NumPartitions())
	require.Equal(t, localResult.Snapshot(-1), remoteResult.Snapshot(-1))
}

func TestClusterLimit(t *testing.T) {
	src := createTestSource(t, 100, 10)
	df := weft.Read(src).Limit(25)
	plan, err := df.Plan()
	require.Nil(t, err)
	addrs, teardown := startTestWorkers(t, df, 1)
	defer teardown()
	backend, err := CreateBackend(&BackendOptions{WorkerAddrs: addrs, RPCTimeout: 5 * time.Second})
	require.Nil(t, err)
	defer backend.Stop()
	result, err := engine.Run(context.Background(), plan, backend, &engine.RunConfig{}, engine.CreateRunStatistics())
	require.Nil(t, err)
	require.Equal(t, 25, result.NumRows())
	snap := result.Snapshot(-1)
	for i, row := range snap.Rows {
		require.Equal(t, int64(i), row[0])
	}
}

func TestPartitionEnvelopeRoundTrip(t *testing.T) {
	col, err := weft.CreateColumn("id", weft.Int64ColumnType, []interface{}{int64(7), nil}, nil)
	require.Nil(t, err)
	part, err := weft.CreatePartition(3, []*weft.Column{col})
	require.Nil(t, err)
	env, err := encodePartition(part)
	require.Nil(t, err)
	require.Equal(t, 3, env.Index)
	require.Equal(t, 2, env.NumRows)
	decoded, err := decodePartition(env)
	require.Nil(t, err)
	require.Equal(t, part.Index(), decoded.Index())
	require.Equal(t, part.NumRows(), decoded.NumRows())
}

func TestPartitionEnvelopeRejectsCorruption(t *testing.T) {
	col, err := weft.CreateColumn("id", weft.Int64ColumnType, []interface{}{int64(7)}, nil)
	require.Nil(t, err)
	part, err := weft.CreatePartition(0, []*weft.Column{col})
	require.Nil(t, err)
	env, err := encodePartition(part)
	require.Nil(t, err)
	env.Data[len(env.Data)-1] ^= 0xff
	_, err = decodePartition(env)
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "checksum")
}

func TestReconstructError(t *testing.T) {
	task := &weft.Task{ID: "t1", Kind: weft.UDFApplyOperation, Resources: weft.ResourceRequest{CPUs: 4}}
	err := reconstructError(&taskResponse{ErrorKind: errorKindResource, Error: "boom"}, task)
	var resourceErr werrors.ResourceError
	require.ErrorAs(t, err, &resourceErr)
	require.Equal(t, 4, resourceErr.CPUs)
	require.Equal(t, "boom", err.Error())

	err = reconstructError(&taskResponse{ErrorKind: errorKindUnknownUDF, Error: "nope"}, task)
	var udfErr werrors.UnknownUDFError
	require.ErrorAs(t, err, &udfErr)

	// internal errors stay untyped so the scheduler treats them as transient
	err = reconstructError(&taskResponse{ErrorKind: errorKindInternal, Error: "splat"}, task)
	require.Equal(t, errorKindInternal, classifyError(err))
	require.Contains(t, err.Error(), "splat")
}
