package syscall

import "testing"

func TestSyscallNumbersAreUnique(t *testing.T) {
	nums := []int{SysWrite, SysExit, SysFork, SysExec, SysYield, SysRead, SysWaitpid}
	seen := make(map[int]bool, len(nums))
	for _, n := range nums {
		if seen[n] {
			t.Fatalf("syscall number %d is assigned more than once", n)
		}
		seen[n] = true
	}
}
