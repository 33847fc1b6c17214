/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"goportfolio/internal/domain"
)

func TestReplaceBumpsVersionAndCopies(t *testing.T) {
	p := domain.DefaultProfile()
	s := New(p)
	if _, v := s.Snapshot(); v != 0 {
		t.Fatalf("initial version = %d", v)
	}
	next := p.Clone()
	next.Name = "Sam"
	if v := s.Replace(next); v != 1 {
		t.Fatalf("version after replace = %d", v)
	}
	next.Name = "mutated after replace"
	got, _ := s.Snapshot()
	if got.Name != "Sam" {
		t.Fatalf("store shares memory with caller: %q", got.Name)
	}
	got.Projects[0].Title = "mutated snapshot"
	again, _ := s.Snapshot()
	if again.Projects[0].Title != "Fake News Checker" {
		t.Fatalf("snapshot shares memory with store")
	}
}

func TestUpdateErrorLeavesValue(t *testing.T) {
	s := New(domain.DefaultProfile())
	boom := errors.New("boom")
	v, err := s.Update(func(p domain.Profile) (domain.Profile, error) {
		p.Name = "x"
		return p, boom
	})
	if !errors.Is(err, boom) || v != 0 {
		t.Fatalf("Update = %d, %v", v, err)
	}
	if p, _ := s.Snapshot(); p.Name != "Alex Morgan" {
		t.Fatalf("failed update modified the store: %q", p.Name)
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	s := New(domain.DefaultProfile())
	var got []Version
	cancel := s.Subscribe(func(c Change) { got = append(got, c.Version) })
	s.Replace(domain.DefaultProfile())
	s.Replace(domain.DefaultProfile())
	cancel()
	cancel()
	s.Replace(domain.DefaultProfile())
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("subscriber saw %v", got)
	}
}

func TestWaitUnblocksOnReplace(t *testing.T) {
	s := New(domain.DefaultProfile())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan Version, 1)
	go func() {
		_, v, err := s.Wait(ctx, 0)
		if err != nil {
			t.Errorf("Wait: %v", err)
		}
		done <- v
	}()
	time.Sleep(10 * time.Millisecond)
	p := domain.DefaultProfile()
	p.Role = "Designer"
	s.Replace(p)
	select {
	case v := <-done:
		if v != 1 {
			t.Fatalf("Wait returned version %d", v)
		}
	case <-ctx.Done():
		t.Fatalf("Wait did not unblock")
	}
}

func TestWaitHonoursContext(t *testing.T) {
	s := New(domain.DefaultProfile())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := s.Wait(ctx, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	s := New(domain.DefaultProfile())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Update(func(p domain.Profile) (domain.Profile, error) {
				p.Projects = append(p.Projects, domain.NewProject())
				return p, nil
			})
		}()
	}
	wg.Wait()
	p, v := s.Snapshot()
	if v != 50 || len(p.Projects) != 52 {
		t.Fatalf("lost updates: version=%d projects=%d", v, len(p.Projects))
	}
}
