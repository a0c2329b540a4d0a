// --------------------------------------------------------------------------------
// Author: Thomas F McGeehan V
//
// This file is part of a software project developed by Thomas F McGeehan V.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// For more information about the MIT License, please visit:
// https://opensource.org/licenses/MIT
//
// Acknowledgment appreciated but not required.
// --------------------------------------------------------------------------------

package tripdata

import "time"

// Plan returns one descriptor per data type, year and month (1-12) in the
// inclusive year range. Descriptors are ordered by type, then year, then
// month. An empty type list or an inverted range yields an empty plan.
func Plan(src Source, types []DataType, startYear, endYear int) []SourceDescriptor {
	if len(types) == 0 || endYear < startYear {
		return nil
	}

	plan := make([]SourceDescriptor, 0, len(types)*(endYear-startYear+1)*12)
	for _, t := range types {
		for year := startYear; year <= endYear; year++ {
			for month := 1; month <= 12; month++ {
				plan = append(plan, NewDescriptor(src, t, year, month))
			}
		}
	}
	return plan
}

// PlanWindow returns the descriptors for every month touched by the
// [start, end] window, starting at the first day of start's month. Months
// are the outer loop and types the inner one, so a scheduled run fetches
// all types of a month before moving on.
func PlanWindow(src Source, types []DataType, start, end time.Time) []SourceDescriptor {
	if len(types) == 0 || end.Before(start) {
		return nil
	}

	var plan []SourceDescriptor
	current := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	for !current.After(last) {
		for _, t := range types {
			plan = append(plan, NewDescriptor(src, t, current.Year(), int(current.Month())))
		}
		current = current.AddDate(0, 1, 0)
	}
	return plan
}
