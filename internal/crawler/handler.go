// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package crawler

import "context"

// DataHandler is the caller-supplied capability invoked once per non-empty
// page, replacing the source's duck-typed async callback. It is awaited
// synchronously per page; the crawler applies no backpressure of its own.
type DataHandler interface {
	Handle(ctx context.Context, client *FeedClient, items []Item) error
}

// DataHandlerFunc adapts a plain function to DataHandler.
type DataHandlerFunc func(ctx context.Context, client *FeedClient, items []Item) error

func (f DataHandlerFunc) Handle(ctx context.Context, client *FeedClient, items []Item) error {
	return f(ctx, client, items)
}
