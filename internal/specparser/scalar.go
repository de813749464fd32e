/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package specparser

import "encoding/json"

// tryJSON attempts to parse v as a JSON scalar or composite value.
func tryJSON(v string) (interface{}, bool) {
	var out interface{}
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return nil, false
	}
	return out, true
}
