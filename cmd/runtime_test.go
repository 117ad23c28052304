// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"grimm.is/flowshape/internal/capture"
	"grimm.is/flowshape/internal/config"
	"grimm.is/flowshape/internal/engine"
	"grimm.is/flowshape/internal/logging"
	"grimm.is/flowshape/internal/qos"
)

func quietLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError})
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Database = ":memory:"
	return cfg
}

func writeCapture(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	start := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
			DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IPv4(10, 0, 0, 1),
			DstIP:    net.IPv4(10, 0, 0, 2),
		}
		udp := &layers.UDP{SrcPort: layers.UDPPort(40000 + i), DstPort: 9999}
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(bytes.Repeat([]byte("x"), 100))))

		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * 50 * time.Millisecond),
			CaptureLength: len(buf.Bytes()),
			Length:        len(buf.Bytes()),
		}
		require.NoError(t, w.WritePacket(ci, buf.Bytes()))
	}
	return path
}

func TestNewRuntime(t *testing.T) {
	cfg := testConfig()
	cfg.Policies = []config.PolicyConfig{{Protocol: "UDP", Priority: 3, BandwidthLimit: qos.Limit(5000)}}
	cfg.Analytics.Enabled = true
	cfg.RateLimiting = true

	rt, err := newRuntime(context.Background(), cfg, quietLogger(), nil)
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, 3, rt.rules.Table().Priority("UDP"))
	assert.NotNil(t, rt.collector)
	assert.NotNil(t, rt.limiter)
	assert.Nil(t, rt.source)
	assert.Contains(t, rt.driver.Pipeline().Stages(), engine.StageAnalytics)
	assert.Contains(t, rt.driver.Pipeline().Stages(), engine.StageRateLimit)

	_, err = rt.newServer()
	require.NoError(t, err)

	families, err := rt.registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewRuntime_BadDatabase(t *testing.T) {
	cfg := testConfig()
	cfg.Database = filepath.Join(t.TempDir(), "missing", "dir", "db.sqlite")

	_, err := newRuntime(context.Background(), cfg, quietLogger(), nil)
	assert.Error(t, err)
}

func TestSourceFor(t *testing.T) {
	assert.Nil(t, sourceFor(nil))
	assert.Nil(t, sourceFor(&config.CaptureConfig{}))

	src := sourceFor(&config.CaptureConfig{PcapFile: "a.pcap", Interface: "eth0"})
	assert.IsType(t, &capture.PcapFileSource{}, src, "pcap file wins")

	src = sourceFor(&config.CaptureConfig{Interface: "eth0", Snaplen: 128})
	live, ok := src.(*capture.LiveSource)
	require.True(t, ok)
	assert.Equal(t, 128, live.Snaplen)
}

func TestReplay(t *testing.T) {
	path := writeCapture(t, 25)
	cfg := testConfig()
	cfg.MaxBatch = 10

	var out bytes.Buffer
	summary, err := replay(context.Background(), cfg, quietLogger(), path, &out, true)
	require.NoError(t, err)

	assert.Equal(t, 25, summary.Packets)
	assert.Equal(t, 3, summary.Cycles)
	assert.Equal(t, 25, summary.Statistics.Original.Count)
	// Every frame shares one source, destination and layer stack.
	assert.Equal(t, 3, summary.Statistics.Optimized.Count)
	assert.Positive(t, summary.BandwidthUtilization["UDP"])
	require.NotNil(t, summary.LatencyMetrics)
	assert.Equal(t, 24, summary.LatencyMetrics.Samples)

	var cycles []uint64
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var snap engine.Snapshot
		require.NoError(t, json.Unmarshal(sc.Bytes(), &snap))
		cycles = append(cycles, snap.Cycle)
		require.Len(t, snap.Packets, 1)
		assert.NotNil(t, snap.Packets[0].OptimizedLength)
	}
	assert.Equal(t, []uint64{1, 2, 3}, cycles)
}

func TestReplay_MissingFile(t *testing.T) {
	_, err := replay(context.Background(), testConfig(), quietLogger(), "/nonexistent.pcap", &bytes.Buffer{}, false)
	assert.Error(t, err)
}
