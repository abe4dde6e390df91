// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package stager_test

import (
	"context"
	"fmt"

	"github.com/bodaay/stager/pkg/stager"
)

func ExampleStage() {
	target := stager.Target{
		Name:       "food-101",
		URLs:       []string{"https://data.vision.ee.ethz.ch/cvl/food-101.tar.gz"},
		Dest:       "./datasets/food-101",
		ExtractDir: "./datasets",
		Archive:    true,
		Layout:     "images",
		RetryLimit: 1,
	}

	// Progress callback
	progress := func(e stager.ProgressEvent) {
		switch e.Event {
		case "skip":
			fmt.Println("Already staged:", e.Path)
		case "file_done":
			fmt.Printf("Downloaded: %s\n", e.Path)
		case "done":
			fmt.Println("Complete!")
		}
	}

	res, err := stager.Stage(context.Background(), target, stager.DefaultSettings(), progress)
	if err != nil {
		fmt.Printf("Error (%s): %v\n", stager.Kind(err), err)
		return
	}
	fmt.Printf("%d categories, e.g. %v\n", res.ItemCount, res.SampleNames)
}

func ExampleStage_candidates() {
	// The second URL is only tried after three failed attempts on the first.
	target := stager.Target{
		URLs: []string{
			"https://mirror-a.example.com/MobileNetV2.mlmodel",
			"https://mirror-b.example.com/MobileNetV2.mlmodel",
		},
		Dest:       "./models/MobileNetV2.mlmodel",
		RetryLimit: 3,
	}

	res, err := stager.Stage(context.Background(), target, stager.Settings{}, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("served by", res.SourceURL)
}

func ExampleStage_redisLock() {
	// Runs on different hosts sharing a volume coordinate through Redis.
	cfg := stager.DefaultSettings()
	cfg.Locker = stager.NewRedisLocker("localhost:6379", 0)

	target := stager.Target{
		URLs: []string{"s3://ml-artifacts/models/ResNet50.mlmodel?region=us-east-1"},
		Dest: "/shared/models/ResNet50.mlmodel",
	}

	if _, err := stager.Stage(context.Background(), target, cfg, nil); err != nil {
		fmt.Printf("Error: %v\n", err)
	}
}
