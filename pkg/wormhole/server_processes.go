package wormhole

import (
	"fmt"
	"sync"

	"github.com/tauraamui/wormhole/pkg/log"
	"github.com/tauraamui/wormhole/pkg/wormhole/process"
)

// SetupProcesses creates a player for every connected source and a
// copy process for every derived feed.
func (s *Server) SetupProcesses() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.connections {
		proc := process.New(process.Settings{
			WaitForShutdownMsg: fmt.Sprintf("Stopping player for source [%s]", c.source.Name),
			Process: process.PlayerProcess(c.conn, s.feeds[c.source.Name], process.PlayerOptions{
				FPS: c.source.FPS, Loop: c.source.Loop, PrintFPS: s.config.Debug,
			}),
		})
		s.processes = append(s.processes, proc.Setup())
	}

	for _, feed := range s.config.Feeds {
		parent, ok := s.feeds[feed.Parent]
		if !ok {
			log.Error("Feed [%s] has unknown parent [%s]... skipping...", feed.Name, feed.Parent)
			continue
		}
		proc := process.New(process.Settings{
			WaitForShutdownMsg: fmt.Sprintf("Stopping copy for feed [%s]", feed.Name),
			Process: process.CopyProcess(parent, s.feeds[feed.Name], process.CopyOptions{
				Hard:     feed.Hard(),
				Width:    feed.Width,
				Height:   feed.Height,
				Scale:    feed.Scale,
				MaxFPS:   feed.MaxFPS,
				PrintFPS: feed.PrintFPS,
				Chain:    s.feedChains[feed.Name],
			}),
		})
		s.processes = append(s.processes, proc.Setup())
	}
}

func (s *Server) RunProcesses() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, proc := range s.processes {
		proc.Start()
	}
}

func (s *Server) shutdownProcesses() {
	s.mu.Lock()
	processes := s.processes
	s.processes = nil
	s.mu.Unlock()

	wg := sync.WaitGroup{}
	wg.Add(len(processes))
	for _, proc := range processes {
		go func(wg *sync.WaitGroup, proc process.Process) {
			proc.Stop()
			proc.Wait()
			wg.Done()
		}(&wg, proc)
	}
	wg.Wait()
}
