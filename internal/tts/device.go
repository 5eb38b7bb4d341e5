package tts

import (
	"os"
	"os/exec"
)

const (
	DeviceCUDA = "cuda"
	DeviceCPU  = "cpu"
)

// cudaProbe 检测本机是否有可用的 NVIDIA 设备。
var cudaProbe = func() bool {
	if _, err := os.Stat("/dev/nvidia0"); err == nil {
		return true
	}
	_, err := exec.LookPath("nvidia-smi")
	return err == nil
}

// ResolveDevice 把配置的 auto|cuda|cpu 解析为实际设备。
func ResolveDevice(pref string) string {
	switch pref {
	case DeviceCUDA, DeviceCPU:
		return pref
	}
	if cudaProbe() {
		return DeviceCUDA
	}
	return DeviceCPU
}
